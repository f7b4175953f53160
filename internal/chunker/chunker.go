// Package chunker windows document text that exceeds the embedding
// input limit. Short documents pass through as a single chunk; long
// ones become overlapping windows that share a parent key so search
// results can be deduplicated back to the document.
package chunker

import (
	"fmt"

	"github.com/packmcp/packmcp/internal/content"
)

const (
	// WindowSize is the maximum chunk length in runes. Sized so a
	// window fits comfortably inside every supported backend's input
	// limit.
	WindowSize = 2000

	// Overlap is how many runes consecutive windows share, preserving
	// context across the cut point.
	Overlap = 200
)

// Chunk is one embeddable slice of a document.
type Chunk struct {
	// IdentityKey is the document's key, suffixed with #<ordinal> when
	// the document was split.
	IdentityKey string
	// ParentIdentityKey is the owning document's key. Empty for
	// unsplit documents.
	ParentIdentityKey string
	Text              string
	Ordinal           int
}

// Split windows a document's searchable text. The output is
// deterministic: the same document always yields the same chunks with
// the same keys.
func Split(doc content.Document) []Chunk {
	runes := []rune(doc.SearchableText)
	if len(runes) <= WindowSize {
		return []Chunk{{
			IdentityKey: doc.IdentityKey,
			Text:        doc.SearchableText,
		}}
	}

	step := WindowSize - Overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + WindowSize
		if end > len(runes) {
			end = len(runes)
		}
		ordinal := len(chunks)
		chunks = append(chunks, Chunk{
			IdentityKey:       fmt.Sprintf("%s#%d", doc.IdentityKey, ordinal),
			ParentIdentityKey: doc.IdentityKey,
			Text:              string(runes[start:end]),
			Ordinal:           ordinal,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
