package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Embeddings.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Greater(t, cfg.Indexing.Workers, 0)
	assert.Contains(t, cfg.DataDir, ".packmcp")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
library_root: /srv/content
data_dir: /var/lib/packmcp
embeddings:
  provider: ollama
  model: nomic-embed-text
  batch_size: 16
indexing:
  workers: 4
  include_deprecated: true
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/content", cfg.LibraryRoot)
	assert.Equal(t, "/var/lib/packmcp", cfg.DataDir)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 16, cfg.Embeddings.BatchSize)
	assert.Equal(t, 4, cfg.Indexing.Workers)
	assert.True(t, cfg.Indexing.IncludeDeprecated)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeConfigNotFound))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddings: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeConfigInvalid))
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
library_root: /from/file
embeddings:
  provider: static
`), 0o644))

	t.Setenv("PACKMCP_LIBRARY_ROOT", "/from/env")
	t.Setenv("PACKMCP_EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("PACKMCP_WORKERS", "9")
	t.Setenv("PACKMCP_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.LibraryRoot)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 9, cfg.Indexing.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_UnknownProviderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddings:\n  provider: quantum\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeConfigInvalid))
}

func TestEffectiveContentRoot(t *testing.T) {
	cfg := &Config{LibraryRoot: "/lib"}
	assert.Equal(t, "/lib", cfg.EffectiveContentRoot())

	cfg.ContentRoot = "/content"
	assert.Equal(t, "/content", cfg.EffectiveContentRoot())
}
