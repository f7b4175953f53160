// Package store persists the index: an HNSW graph for vectors and a
// SQLite database for record metadata, the incremental-build manifest,
// and the pinned embedding configuration. Both live under one data
// directory behind a single Store with an explicit Open/Close
// lifecycle.
package store

import (
	"slices"

	"github.com/packmcp/packmcp/internal/content"
)

// IndexRecord is the persisted unit of retrieval: one embedded chunk
// of a document together with the metadata needed to render a search
// result without re-reading the source file.
type IndexRecord struct {
	IdentityKey       string
	ParentIdentityKey string // empty when the document was not chunked
	ContentType       content.ContentType
	PackName          string
	RelPath           string
	DisplayName       string
	Description       string
	Excerpt           string
	Metadata          map[string]string
	Vector            []float32
}

// Filter restricts a query to matching records. Zero values match
// everything. ContentTypes is the any-of form used when one query
// spans several types; it composes with ContentType by intersection,
// though callers set one or the other.
type Filter struct {
	ContentType  content.ContentType
	ContentTypes []content.ContentType
	Pack         string
}

func (f Filter) matches(r *IndexRecord) bool {
	if f.ContentType != "" && r.ContentType != f.ContentType {
		return false
	}
	if len(f.ContentTypes) > 0 && !slices.Contains(f.ContentTypes, r.ContentType) {
		return false
	}
	if f.Pack != "" && r.PackName != f.Pack {
		return false
	}
	return true
}

func (f Filter) restrictive() bool {
	return f.ContentType != "" || len(f.ContentTypes) > 0 || f.Pack != ""
}

// QueryMatch is one ranked record returned by Query. Score is cosine
// similarity mapped onto [0,1]: 1 - distance/2, where distance is the
// cosine distance in [0,2]. The scale is identical for every embedding
// backend.
type QueryMatch struct {
	Record IndexRecord
	Score  float32
}

// TypeStats holds per-content-type counts.
type TypeStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Stats summarizes the index contents.
type Stats struct {
	TotalDocuments int                              `json:"total_documents"`
	TotalChunks    int                              `json:"total_chunks"`
	PerType        map[content.ContentType]TypeStats `json:"per_type"`
	EmbeddingModel string                           `json:"embedding_model"`
	Dimensions     int                              `json:"dimensions"`
}

// distanceToScore maps cosine distance (0 identical, 2 opposite) onto
// a similarity score in [0,1].
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
