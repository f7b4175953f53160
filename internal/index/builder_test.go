package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/embed"
	pkgerr "github.com/packmcp/packmcp/internal/errors"
	"github.com/packmcp/packmcp/internal/search"
	"github.com/packmcp/packmcp/internal/store"
)

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
}

func newTestLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml",
		"id: enrich-ip\nname: Enrich IP Playbook\ndescription: Enrich IP addresses using VirusTotal\n")
	writeFile(t, root, "Packs/ThreatIntel/Scripts/EnrichIP/EnrichIP.yml",
		"name: EnrichIP\ncomment: Enrich a single IP address\n")
	writeFile(t, root, "Packs/Network/ModelingRules/NetModel/NetModel.xif",
		"[MODEL: dataset=\"acme_fw_raw\"]\n[RULE: net_model]\nalter xdm.source.ipv4 = src_ip;\n")
	return root
}

type testHarness struct {
	root    string
	dataDir string
	builder *Builder
	store   *store.Store
	embed   embed.Embedder
}

func newHarness(t *testing.T, root string) *testHarness {
	t.Helper()

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	dataDir := t.TempDir()
	st, err := store.Open(store.Config{
		DataDir:    dataDir,
		Dimensions: embedder.Dimensions(),
		Model:      embedder.ModelName(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	discoverer, err := content.NewDiscoverer(root)
	require.NoError(t, err)

	return &testHarness{
		root:    root,
		dataDir: dataDir,
		builder: NewBuilder(discoverer, embedder, st, dataDir),
		store:   st,
		embed:   embedder,
	}
}

func TestBuild_FullReportCounts(t *testing.T) {
	h := newHarness(t, newTestLibrary(t))

	report, err := h.builder.Build(context.Background(), Options{Mode: ModeFull, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, "full", report.Mode)
	assert.Equal(t, 1, report.PerType[content.TypePlaybook].Discovered)
	assert.Equal(t, 1, report.PerType[content.TypePlaybook].Embedded)
	assert.Equal(t, 1, report.PerType[content.TypeScript].Embedded)
	assert.Equal(t, 1, report.PerType[content.TypeModelingRule].Embedded)
	assert.Empty(t, report.FileErrors)
	assert.Equal(t, StateIdle, h.builder.State())

	stats, err := h.store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
}

func TestBuild_EndToEndSearchScenario(t *testing.T) {
	h := newHarness(t, newTestLibrary(t))

	_, err := h.builder.Build(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)

	engine, err := search.NewEngine(h.embed, h.store)
	require.NoError(t, err)

	result, err := engine.Search(context.Background(), search.Query{
		Text:        "enrich an IP address with threat intelligence",
		ContentType: content.TypePlaybook,
		TopK:        5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "ThreatIntel", result.Results[0].PackName)
	assert.Equal(t, "Enrich IP Playbook", result.Results[0].DisplayName)
}

func TestBuild_Deterministic(t *testing.T) {
	root := newTestLibrary(t)

	first := newHarness(t, root)
	_, err := first.builder.Build(context.Background(), Options{Mode: ModeFull, Workers: 4})
	require.NoError(t, err)
	firstManifest, err := first.store.Manifest()
	require.NoError(t, err)

	second := newHarness(t, root)
	_, err = second.builder.Build(context.Background(), Options{Mode: ModeFull, Workers: 1})
	require.NoError(t, err)
	secondManifest, err := second.store.Manifest()
	require.NoError(t, err)

	// Same tree, same hashes, same identity keys regardless of worker
	// count.
	assert.Equal(t, firstManifest, secondManifest)

	firstStats, err := first.store.Stats()
	require.NoError(t, err)
	secondStats, err := second.store.Stats()
	require.NoError(t, err)
	assert.Equal(t, firstStats.PerType, secondStats.PerType)
}

func TestBuild_IncrementalSkipsUnchanged(t *testing.T) {
	h := newHarness(t, newTestLibrary(t))
	ctx := context.Background()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.NoError(t, err)

	report, err := h.builder.Build(ctx, Options{Mode: ModeIncremental})
	require.NoError(t, err)

	for typ, tr := range report.PerType {
		assert.Equal(t, tr.Discovered, tr.Skipped, "type %s", typ)
		assert.Zero(t, tr.Embedded, "type %s", typ)
	}
}

func TestBuild_IncrementalReembedsChangedFile(t *testing.T) {
	root := newTestLibrary(t)
	h := newHarness(t, root)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.NoError(t, err)

	writeFile(t, root, "Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml",
		"id: enrich-ip\nname: Enrich IP Playbook\ndescription: Enrich IP and URL indicators\n")

	report, err := h.builder.Build(ctx, Options{Mode: ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PerType[content.TypePlaybook].Embedded)
	assert.Equal(t, 1, report.PerType[content.TypeScript].Skipped)
}

func TestBuild_ReindexShrunkFileDropsRemovedItems(t *testing.T) {
	root := t.TempDir()
	rel := "Packs/Acme/Classifiers/classifier-mapper-incoming-Acme.json"
	writeFile(t, root, rel,
		`{"id":"acme-mapper","name":"Acme Mapper","description":"Maps Acme incidents","mapping":{"Acme Malware":{"internalMapping":{"severity":{}}},"Acme Phishing":{"internalMapping":{"severity":{}}}}}`)
	h := newHarness(t, root)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.NoError(t, err)

	stats, err := h.store.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.PerType[content.TypeMapper].Documents)

	// Drop one of the two mapping definitions and re-index.
	writeFile(t, root, rel,
		`{"id":"acme-mapper","name":"Acme Mapper","description":"Maps Acme incidents","mapping":{"Acme Malware":{"internalMapping":{"severity":{}}}}}`)

	report, err := h.builder.Build(ctx, Options{Mode: ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, 1, report.PerType[content.TypeMapper].Embedded)

	stats, err = h.store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PerType[content.TypeMapper].Documents)
	assert.Equal(t, 1, stats.PerType[content.TypeMapper].Chunks)
}

func TestBuild_ReindexEmptiedFileDropsAllItems(t *testing.T) {
	root := t.TempDir()
	rel := "Packs/Acme/Classifiers/classifier-mapper-Acme.json"
	writeFile(t, root, rel,
		`{"name":"Acme Mapper","description":"Maps Acme incidents"}`)
	h := newHarness(t, root)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.NoError(t, err)

	writeFile(t, root, rel, `{}`)

	_, err = h.builder.Build(ctx, Options{Mode: ModeIncremental})
	require.NoError(t, err)

	stats, err := h.store.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.PerType[content.TypeMapper].Chunks)

	// The file still exists, so its manifest entry stays and the next
	// incremental run skips it without re-reading.
	manifest, err := h.store.Manifest()
	require.NoError(t, err)
	assert.Contains(t, manifest, rel)
}

func TestBuild_PrunesDeletedFiles(t *testing.T) {
	root := newTestLibrary(t)
	h := newHarness(t, root)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root,
		"Packs", "ThreatIntel", "Scripts", "EnrichIP", "EnrichIP.yml")))

	report, err := h.builder.Build(ctx, Options{Mode: ModeIncremental})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pruned)

	stats, err := h.store.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.PerType[content.TypeScript].Chunks)

	manifest, err := h.store.Manifest()
	require.NoError(t, err)
	assert.NotContains(t, manifest, "Packs/ThreatIntel/Scripts/EnrichIP/EnrichIP.yml")
}

func TestBuild_MalformedFileRecordedNotFatal(t *testing.T) {
	root := newTestLibrary(t)
	writeFile(t, root, "Packs/Broken/Playbooks/playbook-Broken.yml",
		"name: [unterminated\n  nope")
	h := newHarness(t, root)

	report, err := h.builder.Build(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)

	assert.Equal(t, 1, report.PerType[content.TypePlaybook].Failed)
	assert.Equal(t, 1, report.PerType[content.TypePlaybook].Embedded)
	require.Len(t, report.FileErrors, 1)
	assert.Contains(t, report.FileErrors[0], "playbook-Broken.yml")
}

func TestBuild_AllFailuresStillReports(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Packs/Broken/Playbooks/playbook-A.yml", "name: [broken\n x")
	writeFile(t, root, "Packs/Broken/Playbooks/playbook-B.yml", "name: [broken\n y")
	h := newHarness(t, root)

	report, err := h.builder.Build(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)
	assert.Equal(t, 2, report.PerType[content.TypePlaybook].Discovered)
	assert.Equal(t, 2, report.PerType[content.TypePlaybook].Failed)
	assert.Zero(t, report.TotalEmbedded())
}

func TestBuild_ConcurrentBuildRejected(t *testing.T) {
	h := newHarness(t, newTestLibrary(t))

	other := flock.New(filepath.Join(h.dataDir, lockFileName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	_, buildErr := h.builder.Build(context.Background(), Options{Mode: ModeFull})
	require.Error(t, buildErr)
	assert.True(t, pkgerr.HasCode(buildErr, pkgerr.ErrCodeBuildLocked))
}

func TestBuild_TypeFilterDoesNotPruneOtherTypes(t *testing.T) {
	root := newTestLibrary(t)
	h := newHarness(t, root)
	ctx := context.Background()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.NoError(t, err)

	_, err = h.builder.Build(ctx, Options{
		Mode:  ModeFull,
		Types: []content.ContentType{content.TypePlaybook},
	})
	require.NoError(t, err)

	stats, err := h.store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PerType[content.TypeScript].Chunks)
	assert.Equal(t, 1, stats.PerType[content.TypeModelingRule].Chunks)
}

func TestBuild_Cancellation(t *testing.T) {
	h := newHarness(t, newTestLibrary(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.builder.Build(ctx, Options{Mode: ModeFull})
	require.Error(t, err)
}
