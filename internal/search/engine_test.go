package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/embed"
	pkgerr "github.com/packmcp/packmcp/internal/errors"
	"github.com/packmcp/packmcp/internal/pathguard"
	"github.com/packmcp/packmcp/internal/store"
)

// indexText puts one record in the store with the static embedder's
// vector for the given text.
func indexText(t *testing.T, st *store.Store, e embed.Embedder, key string,
	typ content.ContentType, pack, relPath, parentKey, text string) {
	t.Helper()
	vec, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, st.Apply(context.Background(), store.Batch{Records: []store.IndexRecord{{
		IdentityKey:       key,
		ParentIdentityKey: parentKey,
		ContentType:       typ,
		PackName:          pack,
		RelPath:           relPath,
		DisplayName:       key,
		Excerpt:           text,
		Vector:            vec,
	}}}))
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store, embed.Embedder) {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	st, err := store.Open(store.Config{
		DataDir:    t.TempDir(),
		Dimensions: embedder.Dimensions(),
		Model:      embedder.ModelName(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine, err := NewEngine(embedder, st, opts...)
	require.NoError(t, err)
	return engine, st, embedder
}

func TestSearch_EndToEndScenario(t *testing.T) {
	engine, st, embedder := newTestEngine(t)

	indexText(t, st, embedder, "playbook:Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml",
		content.TypePlaybook, "ThreatIntel", "Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml", "",
		"name: Enrich IP Playbook | description: Enrich IP addresses using VirusTotal")
	indexText(t, st, embedder, "playbook:Packs/Email/Playbooks/playbook-Phishing.yml",
		content.TypePlaybook, "Email", "Packs/Email/Playbooks/playbook-Phishing.yml", "",
		"name: Phishing Triage | description: Investigate reported phishing emails")

	result, err := engine.Search(context.Background(), Query{
		Text:        "enrich an IP address with threat intelligence",
		ContentType: content.TypePlaybook,
		TopK:        5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)

	top := result.Results[0]
	assert.Equal(t, "ThreatIntel", top.PackName)
	assert.Contains(t, top.IdentityKey, "Enrich_IP")
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Search(context.Background(), Query{Text: ""})
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeInvalidQuery))
}

func TestSearch_UnknownTypeRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Search(context.Background(), Query{Text: "x", ContentType: "widget"})
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeInvalidQuery))

	_, err = engine.Search(context.Background(), Query{
		Text:         "x",
		ContentTypes: []content.ContentType{content.TypePlaybook, "widget"},
	})
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeInvalidQuery))
}

func TestSearch_MultiTypeFilter(t *testing.T) {
	engine, st, embedder := newTestEngine(t)

	indexText(t, st, embedder, "parsing_rule:Packs/Net/ParsingRules/fw.xif",
		content.TypeParsingRule, "Net", "Packs/Net/ParsingRules/fw.xif", "",
		"[RULE: firewall_parse] dataset = firewall_logs")
	indexText(t, st, embedder, "modeling_rule:Packs/Net/ModelingRules/fw.xif",
		content.TypeModelingRule, "Net", "Packs/Net/ModelingRules/fw.xif", "",
		"[RULE: firewall_model] dataset = firewall_logs alter src_ip = source")
	indexText(t, st, embedder, "playbook:Packs/Net/Playbooks/playbook-Block_IP.yml",
		content.TypePlaybook, "Net", "Packs/Net/Playbooks/playbook-Block_IP.yml", "",
		"name: Block IP | description: Block an IP on the firewall")

	result, err := engine.Search(context.Background(), Query{
		Text:         "firewall dataset",
		ContentTypes: []content.ContentType{content.TypeParsingRule, content.TypeModelingRule},
		TopK:         10,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	for _, r := range result.Results {
		assert.Contains(t, []content.ContentType{
			content.TypeParsingRule, content.TypeModelingRule,
		}, r.ContentType)
	}
}

func TestSearch_TopKClamped(t *testing.T) {
	engine, st, embedder := newTestEngine(t)
	for i := 0; i < 3; i++ {
		rel := "Packs/P/Playbooks/playbook-" + string(rune('a'+i)) + ".yml"
		indexText(t, st, embedder, "playbook:"+rel, content.TypePlaybook, "P", rel, "",
			"name: playbook "+string(rune('a'+i)))
	}

	result, err := engine.Search(context.Background(), Query{Text: "playbook", TopK: -5})
	require.NoError(t, err)
	assert.Len(t, result.Results, MinTopK)

	result, err = engine.Search(context.Background(), Query{Text: "playbook", TopK: 9000})
	require.NoError(t, err)
	assert.Len(t, result.Results, 3)
}

func TestSearch_ScoresNonIncreasing(t *testing.T) {
	engine, st, embedder := newTestEngine(t)
	texts := []string{
		"name: Enrich IP Playbook | description: enrich addresses",
		"name: Block Domain | description: block malicious domains",
		"name: Quarantine Host | description: isolate compromised endpoints",
	}
	for i, text := range texts {
		rel := "Packs/P/Playbooks/playbook-" + string(rune('a'+i)) + ".yml"
		indexText(t, st, embedder, "playbook:"+rel, content.TypePlaybook, "P", rel, "", text)
	}

	result, err := engine.Search(context.Background(), Query{Text: "enrich an ip address", TopK: 10})
	require.NoError(t, err)
	for i := 1; i < len(result.Results); i++ {
		assert.GreaterOrEqual(t, result.Results[i-1].Score, result.Results[i].Score)
	}
}

func TestSearch_ChunksDeduplicatedToParent(t *testing.T) {
	engine, st, embedder := newTestEngine(t)

	parent := "playbook:Packs/P/Playbooks/playbook-Long.yml"
	rel := "Packs/P/Playbooks/playbook-Long.yml"
	indexText(t, st, embedder, parent+"#0", content.TypePlaybook, "P", rel, parent,
		"name: Long Response Playbook | description: contain the malware outbreak")
	indexText(t, st, embedder, parent+"#1", content.TypePlaybook, "P", rel, parent,
		"additional containment steps for the malware outbreak response")

	result, err := engine.Search(context.Background(), Query{Text: "malware outbreak containment", TopK: 10})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, parent, result.Results[0].IdentityKey)
}

func TestSearch_FullTextHydration(t *testing.T) {
	contentRoot := t.TempDir()
	rel := "Packs/P/Playbooks/playbook-Enrich.yml"
	abs := filepath.Join(contentRoot, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte("name: Enrich\ndescription: full body\n"), 0o644))

	guard, err := pathguard.New(contentRoot)
	require.NoError(t, err)

	engine, st, embedder := newTestEngine(t, WithContentRoot(guard))
	indexText(t, st, embedder, "playbook:"+rel, content.TypePlaybook, "P", rel, "",
		"name: Enrich | description: enrich indicators")

	result, err := engine.Search(context.Background(), Query{
		Text: "enrich indicators", IncludeFullText: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Contains(t, result.Results[0].FullText, "full body")
}

func TestSearch_FullTextOmittedWithoutContentRoot(t *testing.T) {
	engine, st, embedder := newTestEngine(t)
	rel := "Packs/P/Playbooks/playbook-Enrich.yml"
	indexText(t, st, embedder, "playbook:"+rel, content.TypePlaybook, "P", rel, "",
		"name: Enrich | description: enrich indicators")

	result, err := engine.Search(context.Background(), Query{
		Text: "enrich indicators", IncludeFullText: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Empty(t, result.Results[0].FullText)
}

func TestSearch_TraversalPathNeverHydrated(t *testing.T) {
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)

	engine, st, embedder := newTestEngine(t, WithContentRoot(guard))

	// A hostile record pointing outside the content root must not leak
	// file content.
	indexText(t, st, embedder, "playbook:evil", content.TypePlaybook, "P",
		"../../etc/passwd", "", "name: evil playbook")

	result, err := engine.Search(context.Background(), Query{
		Text: "evil playbook", IncludeFullText: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Empty(t, result.Results[0].FullText)
}

func TestSearch_EmbeddingFailureSurfaces(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	st, err := store.Open(store.Config{
		DataDir:    t.TempDir(),
		Dimensions: embedder.Dimensions(),
		Model:      embedder.ModelName(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine, err := NewEngine(embedder, st)
	require.NoError(t, err)

	require.NoError(t, embedder.Close())
	_, searchErr := engine.Search(context.Background(), Query{Text: "anything"})
	require.Error(t, searchErr)
	assert.True(t, pkgerr.HasCode(searchErr, pkgerr.ErrCodeEmbedding))
}
