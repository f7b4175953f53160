// Package config loads packmcp configuration from a YAML file with
// PACKMCP_* environment overrides. Configuration is optional; every
// field has a working default so `packmcp index --library <root>`
// needs no config file at all.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// ConfigFileName is the default config file looked up in the working
// directory and under ~/.packmcp/.
const ConfigFileName = "packmcp.yaml"

// Config is the complete packmcp configuration.
type Config struct {
	// LibraryRoot is the content library to index (contains Packs/).
	LibraryRoot string `yaml:"library_root"`
	// ContentRoot is an optional checkout used for full-text
	// hydration. Defaults to LibraryRoot when empty.
	ContentRoot string `yaml:"content_root"`
	// DataDir holds the persistent index.
	DataDir string `yaml:"data_dir"`

	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EmbeddingsConfig selects and tunes the embedding backend.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider"` // ollama, openai, static, auto
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	OllamaHost string        `yaml:"ollama_host"`
	// OpenAIAPIKey is normally supplied via OPENAI_API_KEY rather
	// than the config file.
	OpenAIAPIKey string `yaml:"openai_api_key"`
	MaxRetries   int    `yaml:"max_retries"`
}

// IndexingConfig tunes build behavior.
type IndexingConfig struct {
	Workers           int  `yaml:"workers"`
	IncludeDeprecated bool `yaml:"include_deprecated"`
}

// LoggingConfig tunes the slog setup.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".packmcp", "index"),
		Embeddings: EmbeddingsConfig{
			Provider: "auto",
		},
		Indexing: IndexingConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given path, or from the default
// locations when path is empty. A missing file is not an error; the
// defaults apply. Environment overrides always apply last.
func Load(path string) (*Config, error) {
	cfg := Default()

	candidates := []string{path}
	if path == "" {
		candidates = defaultPaths()
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				if path != "" {
					return nil, pkgerr.New(pkgerr.ErrCodeConfigNotFound,
						"config file not found: "+path, err)
				}
				continue
			}
			return nil, pkgerr.Wrap(pkgerr.ErrCodeConfigNotFound, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, pkgerr.New(pkgerr.ErrCodeConfigInvalid,
				"parsing "+candidate, err)
		}
		break
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultPaths() []string {
	paths := []string{ConfigFileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".packmcp", ConfigFileName))
	}
	return paths
}

// applyEnvOverrides applies PACKMCP_* (and OPENAI_API_KEY) overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PACKMCP_LIBRARY_ROOT"); v != "" {
		c.LibraryRoot = v
	}
	if v := os.Getenv("PACKMCP_CONTENT_ROOT"); v != "" {
		c.ContentRoot = v
	}
	if v := os.Getenv("PACKMCP_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("PACKMCP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("PACKMCP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("PACKMCP_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := os.Getenv("PACKMCP_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers > 0 {
			c.Indexing.Workers = workers
		}
	}
	if v := os.Getenv("PACKMCP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	switch c.Embeddings.Provider {
	case "", "auto", "ollama", "openai", "static":
	default:
		return pkgerr.New(pkgerr.ErrCodeConfigInvalid,
			"unknown embeddings provider: "+c.Embeddings.Provider, nil)
	}
	if c.Embeddings.Dimensions < 0 {
		return pkgerr.New(pkgerr.ErrCodeConfigInvalid,
			"embeddings dimensions must not be negative", nil)
	}
	if c.Indexing.Workers < 0 {
		return pkgerr.New(pkgerr.ErrCodeConfigInvalid,
			"indexing workers must not be negative", nil)
	}
	return nil
}

// EffectiveContentRoot returns the hydration root, falling back to the
// library root.
func (c *Config) EffectiveContentRoot() string {
	if c.ContentRoot != "" {
		return c.ContentRoot
	}
	return c.LibraryRoot
}
