package embed

import (
	"context"
	"log/slog"
	"time"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// Provider names accepted by the factory.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
	ProviderAuto   = "auto"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string // ollama, openai, static, or auto
	Model      string
	Host       string // ollama only
	APIKey     string // openai only
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

// New creates the configured embedder wrapped with retry behavior.
//
// Provider "auto" prefers a reachable Ollama server and falls back to
// the static embedder, matching offline-first operation. An explicit
// provider never falls back; a misconfiguration is an error.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	retryCfg := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}

	switch cfg.Provider {
	case ProviderStatic:
		return WithRetry(NewStaticEmbedder(), retryCfg), nil

	case ProviderOllama:
		return WithRetry(NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}), retryCfg), nil

	case ProviderOpenAI:
		inner, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return WithRetry(inner, retryCfg), nil

	case ProviderAuto, "":
		ollama := NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if ollama.Available(ctx) {
			slog.Info("using ollama embedder", slog.String("model", ollama.ModelName()))
			return WithRetry(ollama, retryCfg), nil
		}
		_ = ollama.Close()
		slog.Warn("ollama unavailable, falling back to static embedder")
		return WithRetry(NewStaticEmbedder(), retryCfg), nil

	default:
		return nil, pkgerr.New(pkgerr.ErrCodeConfigInvalid,
			"unknown embedding provider: "+cfg.Provider, nil)
	}
}
