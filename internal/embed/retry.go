package embed

import (
	"context"
	"log/slog"
	"time"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// RetryConfig configures the retry wrapper.
type RetryConfig struct {
	MaxRetries   int           // attempts beyond the first
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // backoff cap
	Multiplier   float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryingEmbedder wraps another Embedder and retries transient
// failures with exponential backoff. Only retryable embedding errors
// are retried; context cancellation and permanent errors return
// immediately. Retry lives here so callers above never implement their
// own.
type RetryingEmbedder struct {
	inner Embedder
	cfg   RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// WithRetry wraps an embedder with retry behavior.
func WithRetry(inner Embedder, cfg RetryConfig) *RetryingEmbedder {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.retry(ctx, func() error {
		var inner error
		out, inner = r.inner.Embed(ctx, text)
		return inner
	})
	return out, err
}

func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.retry(ctx, func() error {
		var inner error
		out, inner = r.inner.EmbedBatch(ctx, texts)
		return inner
	})
	return out, err
}

func (r *RetryingEmbedder) Dimensions() int   { return r.inner.Dimensions() }
func (r *RetryingEmbedder) ModelName() string { return r.inner.ModelName() }

func (r *RetryingEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

func (r *RetryingEmbedder) Close() error { return r.inner.Close() }

func (r *RetryingEmbedder) retry(ctx context.Context, fn func() error) error {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return pkgerr.Wrap(pkgerr.ErrCodeEmbeddingTimeout, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !pkgerr.IsRetryable(err) || attempt >= r.cfg.MaxRetries {
			break
		}

		slog.Debug("retrying embedding call",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return pkgerr.Wrap(pkgerr.ErrCodeEmbeddingTimeout, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if r.cfg.MaxDelay > 0 && delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
	return lastErr
}
