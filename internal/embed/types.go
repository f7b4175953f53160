// Package embed generates vector embeddings for document and query
// text. Backends are pluggable: a local Ollama server, the OpenAI API,
// or a deterministic hash-based fallback that needs no network.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default number of texts per backend call.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch size to bound request payloads.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient backend
	// failures.
	DefaultMaxRetries = 3

	// StaticDimensions is the vector width of the hash-based embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text. Implementations must
// be safe for concurrent use; every call honors ctx cancellation and
// deadline.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector
	// per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the backend is ready to serve.
	Available(ctx context.Context) bool

	// Close releases backend resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Unit vectors make
// cosine distance a pure function of the dot product.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
