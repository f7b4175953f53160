// Package search answers natural-language queries over the index. The
// engine embeds the query text, runs the vector search with metadata
// filters, deduplicates chunked documents, and optionally hydrates
// full file content through a path-guarded content root.
package search

import (
	"context"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/embed"
	pkgerr "github.com/packmcp/packmcp/internal/errors"
	"github.com/packmcp/packmcp/internal/pathguard"
	"github.com/packmcp/packmcp/internal/store"
)

const (
	// MinTopK and MaxTopK bound the requested result count; values
	// outside the range are clamped, not rejected.
	MinTopK = 1
	MaxTopK = 50

	// DefaultTopK applies when the query leaves TopK unset.
	DefaultTopK = 5

	// chunkOversample is how many store matches are fetched per
	// requested result. Chunked documents can occupy several of the
	// nearest slots, and grouping collapses them back to one.
	chunkOversample = 4

	// fullTextCacheSize bounds the hydration cache. Entries are whole
	// file bodies, so the cache is deliberately small.
	fullTextCacheSize = 128
)

// Query is one search request. ContentTypes is the any-of filter for
// queries spanning several types; it embeds the text once and runs a
// single store query rather than one per type.
type Query struct {
	Text            string
	ContentType     content.ContentType   // empty matches all types
	ContentTypes    []content.ContentType // non-empty matches any of these
	Pack            string                // empty matches all packs
	TopK            int
	IncludeFullText bool
}

// Result is one ranked document in a QueryResult.
type Result struct {
	IdentityKey  string              `json:"identity_key"`
	DisplayName  string              `json:"display_name"`
	ContentType  content.ContentType `json:"content_type"`
	PackName     string              `json:"pack_name"`
	RelativePath string              `json:"relative_path"`
	Score        float32             `json:"score"`
	Excerpt      string              `json:"excerpt"`
	FullText     string              `json:"full_text,omitempty"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

// QueryResult is an ordered sequence of results, best first, one per
// document.
type QueryResult struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Engine executes queries against a Store with a fixed embedder. The
// embedder must be the one the index was built with; the store rejects
// mismatched vector widths.
type Engine struct {
	embedder      embed.Embedder
	store         *store.Store
	contentGuard  *pathguard.Guard
	fullTextCache *lru.Cache[string, string]
}

// Option configures an Engine.
type Option func(*Engine)

// WithContentRoot enables full-text hydration from a path-guarded
// content checkout. Without it, full text is silently omitted.
func WithContentRoot(guard *pathguard.Guard) Option {
	return func(e *Engine) {
		e.contentGuard = guard
	}
}

// NewEngine creates a search engine.
func NewEngine(embedder embed.Embedder, st *store.Store, opts ...Option) (*Engine, error) {
	cache, err := lru.New[string, string](fullTextCacheSize)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeInternal, err)
	}

	e := &Engine{
		embedder:      embedder,
		store:         st,
		fullTextCache: cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs one query end to end. An embedding failure surfaces as
// an error with no partial result.
func (e *Engine) Search(ctx context.Context, q Query) (*QueryResult, error) {
	if q.Text == "" {
		return nil, pkgerr.New(pkgerr.ErrCodeInvalidQuery, "query text is empty", nil)
	}
	if q.ContentType != "" && !q.ContentType.Valid() {
		return nil, pkgerr.New(pkgerr.ErrCodeInvalidQuery,
			"unknown content type: "+string(q.ContentType), nil)
	}
	for _, t := range q.ContentTypes {
		if !t.Valid() {
			return nil, pkgerr.New(pkgerr.ErrCodeInvalidQuery,
				"unknown content type: "+string(t), nil)
		}
	}
	topK := clampTopK(q.TopK)

	vector, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	matches, err := e.store.Query(ctx, vector,
		store.Filter{ContentType: q.ContentType, ContentTypes: q.ContentTypes, Pack: q.Pack},
		topK*chunkOversample)
	if err != nil {
		return nil, err
	}

	results := groupByDocument(matches)
	if len(results) > topK {
		results = results[:topK]
	}

	if q.IncludeFullText && e.contentGuard != nil {
		for i := range results {
			results[i].FullText = e.hydrate(results[i].RelativePath)
		}
	}

	return &QueryResult{Query: q.Text, Results: results}, nil
}

func clampTopK(topK int) int {
	switch {
	case topK == 0:
		return DefaultTopK
	case topK < MinTopK:
		return MinTopK
	case topK > MaxTopK:
		return MaxTopK
	}
	return topK
}

// groupByDocument keeps the best-scoring chunk per document and
// returns documents ordered by that score descending. Identity key
// breaks score ties so ordering is stable across runs.
func groupByDocument(matches []store.QueryMatch) []Result {
	best := make(map[string]store.QueryMatch)
	for _, match := range matches {
		docKey := match.Record.ParentIdentityKey
		if docKey == "" {
			docKey = match.Record.IdentityKey
		}
		if prior, ok := best[docKey]; !ok || match.Score > prior.Score {
			best[docKey] = match
		}
	}

	results := make([]Result, 0, len(best))
	for docKey, match := range best {
		results = append(results, Result{
			IdentityKey:  docKey,
			DisplayName:  match.Record.DisplayName,
			ContentType:  match.Record.ContentType,
			PackName:     match.Record.PackName,
			RelativePath: match.Record.RelPath,
			Score:        match.Score,
			Excerpt:      match.Record.Excerpt,
			Metadata:     match.Record.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].IdentityKey < results[j].IdentityKey
	})
	return results
}

// hydrate reads a result's source file through the content guard.
// Failures never fail the search; the result just lacks full text.
func (e *Engine) hydrate(relPath string) string {
	if cached, ok := e.fullTextCache.Get(relPath); ok {
		return cached
	}

	data, err := e.contentGuard.ReadFile(relPath)
	if err != nil {
		slog.Warn("full-text hydration failed",
			slog.String("rel_path", relPath),
			slog.String("error", err.Error()))
		return ""
	}

	text := string(data)
	e.fullTextCache.Add(relPath, text)
	return text
}
