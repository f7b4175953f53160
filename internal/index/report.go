package index

import (
	"sync"
	"time"

	"github.com/packmcp/packmcp/internal/content"
)

// State is the builder's lifecycle position. Builds move
// Idle -> Walking -> Extracting -> Embedding -> Committing -> Idle;
// Failed is terminal for a build and reached only when the store
// itself becomes unusable. Per-file problems never leave the normal
// path.
type State string

const (
	StateIdle       State = "idle"
	StateWalking    State = "walking"
	StateExtracting State = "extracting"
	StateEmbedding  State = "embedding"
	StateCommitting State = "committing"
	StateFailed     State = "failed"
)

// Mode selects how much existing store state a build honors.
type Mode int

const (
	// ModeFull re-extracts and re-embeds every discovered file.
	ModeFull Mode = iota
	// ModeIncremental skips files whose content hash matches the
	// stored manifest.
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "full"
}

// TypeReport counts one content type's build outcomes. Discovered,
// Skipped, and Failed count files; Extracted and Embedded count
// documents, since one file can yield several.
type TypeReport struct {
	Discovered int `json:"discovered"`
	Extracted  int `json:"extracted"`
	Embedded   int `json:"embedded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Report is the outcome of one build. A build always produces a
// report, even when it fails.
type Report struct {
	mu sync.Mutex

	Mode     string                               `json:"mode"`
	PerType  map[content.ContentType]*TypeReport  `json:"per_type"`
	Pruned   int                                  `json:"pruned"`
	Duration time.Duration                        `json:"duration"`
	// FileErrors lists per-file failures as "<rel_path>: <error>".
	FileErrors []string `json:"file_errors,omitempty"`
}

func newReport(mode Mode) *Report {
	report := &Report{
		Mode:    mode.String(),
		PerType: make(map[content.ContentType]*TypeReport),
	}
	for _, t := range content.AllTypes() {
		report.PerType[t] = &TypeReport{}
	}
	return report
}

func (r *Report) addDiscovered(t content.ContentType) {
	r.mu.Lock()
	r.PerType[t].Discovered++
	r.mu.Unlock()
}

func (r *Report) addExtracted(t content.ContentType, docs int) {
	r.mu.Lock()
	r.PerType[t].Extracted += docs
	r.mu.Unlock()
}

func (r *Report) addEmbedded(t content.ContentType, docs int) {
	r.mu.Lock()
	r.PerType[t].Embedded += docs
	r.mu.Unlock()
}

func (r *Report) addSkipped(t content.ContentType) {
	r.mu.Lock()
	r.PerType[t].Skipped++
	r.mu.Unlock()
}

func (r *Report) addFailed(t content.ContentType, relPath string, err error) {
	r.mu.Lock()
	r.PerType[t].Failed++
	r.FileErrors = append(r.FileErrors, relPath+": "+err.Error())
	r.mu.Unlock()
}

// TotalEmbedded sums embedded documents across types.
func (r *Report) TotalEmbedded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, tr := range r.PerType {
		total += tr.Embedded
	}
	return total
}
