package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/index"
	"github.com/packmcp/packmcp/internal/search"
	"github.com/packmcp/packmcp/internal/store"
)

func TestRenderer_Results(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf)

	r.Results("enrich ip", []search.Result{
		{
			IdentityKey:  "playbook:Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml",
			DisplayName:  "Enrich IP",
			ContentType:  content.TypePlaybook,
			PackName:     "ThreatIntel",
			RelativePath: "Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml",
			Score:        0.912,
			Excerpt:      "name: Enrich IP | description: Enriches an IP address",
		},
	})

	out := buf.String()
	assert.Contains(t, out, `Results for "enrich ip"`)
	assert.Contains(t, out, "Enrich IP")
	assert.Contains(t, out, "0.912")
	assert.Contains(t, out, "pack:")
	assert.Contains(t, out, "ThreatIntel")
	assert.Contains(t, out, "Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml")
}

func TestRenderer_ResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewPlainRenderer(&buf).Results("nothing", nil)
	assert.Contains(t, buf.String(), `No results for "nothing"`)
}

func TestRenderer_ResultsFullText(t *testing.T) {
	var buf bytes.Buffer
	NewPlainRenderer(&buf).Results("q", []search.Result{
		{DisplayName: "X", FullText: "line one\nline two"},
	})
	assert.Contains(t, buf.String(), "    line one\n    line two")
}

func TestRenderer_Report(t *testing.T) {
	report := &index.Report{
		Mode: "full",
		PerType: map[content.ContentType]*index.TypeReport{
			content.TypePlaybook: {Discovered: 3, Extracted: 3, Embedded: 3},
			content.TypeScript:   {},
		},
		Pruned:     2,
		Duration:   1500 * time.Millisecond,
		FileErrors: []string{"Packs/Bad/Playbooks/broken.yml: yaml parse failure"},
	}

	var buf bytes.Buffer
	NewPlainRenderer(&buf).Report(report)

	out := buf.String()
	assert.Contains(t, out, "Index build complete")
	assert.Contains(t, out, "full mode")
	assert.Contains(t, out, "playbook")
	assert.NotContains(t, out, "script") // zero rows omitted
	assert.Contains(t, out, "pruned 2 stale")
	assert.Contains(t, out, "broken.yml")
}

func TestRenderer_Stats(t *testing.T) {
	stats := store.Stats{
		TotalDocuments: 10,
		TotalChunks:    14,
		EmbeddingModel: "static-hash-v1",
		Dimensions:     256,
		PerType: map[content.ContentType]store.TypeStats{
			content.TypePlaybook: {Documents: 6, Chunks: 9},
			content.TypeMapper:   {Documents: 4, Chunks: 5},
		},
	}

	var buf bytes.Buffer
	NewPlainRenderer(&buf).Stats(stats)

	out := buf.String()
	assert.Contains(t, out, "10 documents, 14 chunks")
	assert.Contains(t, out, "static-hash-v1")
	assert.Contains(t, out, "playbook")
	assert.Contains(t, out, "mapper")
}

func TestRenderer_Error(t *testing.T) {
	var buf bytes.Buffer
	NewPlainRenderer(&buf).Error(errors.New("boom"))
	assert.Contains(t, buf.String(), "error: boom")
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "short", truncateLine("short", 10))
	assert.Equal(t, "a b", truncateLine("a\nb", 10))
	assert.Equal(t, "abcde...", truncateLine("abcdefgh", 5))
}

func TestIsTTY_Buffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}
