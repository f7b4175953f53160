// Package index orchestrates builds: discover candidate files,
// extract documents, chunk and embed them, and commit the records to
// the store, reporting per-type counts. Per-file parse and embedding
// failures are recorded and skipped; only a failing store aborts a
// build.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/packmcp/packmcp/internal/chunker"
	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/embed"
	pkgerr "github.com/packmcp/packmcp/internal/errors"
	"github.com/packmcp/packmcp/internal/store"
)

const (
	// writerBatchSize is how many records the writer accumulates
	// before committing a store batch.
	writerBatchSize = 64

	// excerptLimit caps stored excerpts.
	excerptLimit = 300

	lockFileName = ".build.lock"
)

// Options configures one build.
type Options struct {
	Mode              Mode
	Workers           int // 0 = NumCPU
	IncludeDeprecated bool
	Types             []content.ContentType // empty = all
}

// Builder runs index builds. One Builder serves one library root and
// one store; builds on the same data directory are serialized through
// a file lock so two processes never interleave writes.
type Builder struct {
	discoverer *content.Discoverer
	embedder   embed.Embedder
	store      *store.Store
	dataDir    string

	mu    sync.Mutex
	state State
}

// NewBuilder creates a Builder.
func NewBuilder(discoverer *content.Discoverer, embedder embed.Embedder, st *store.Store, dataDir string) *Builder {
	return &Builder{
		discoverer: discoverer,
		embedder:   embedder,
		store:      st,
		dataDir:    dataDir,
		state:      StateIdle,
	}
}

// State returns the builder's current lifecycle position.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	slog.Debug("build state", slog.String("state", string(s)))
}

// finishWithError picks the terminal state for a failed build. Only an
// unusable store is Failed; anything else (cancellation included)
// returns the builder to Idle for the next attempt.
func (b *Builder) finishWithError(err error) {
	if pkgerr.HasCode(err, pkgerr.ErrCodeStoreUnavailable) ||
		pkgerr.HasCode(err, pkgerr.ErrCodeStoreCorrupt) {
		b.setState(StateFailed)
		return
	}
	b.setState(StateIdle)
}

// fileJob is one candidate with its content hash, ready for the
// worker pool.
type fileJob struct {
	candidate content.CandidateFile
	hash      string
}

// Build runs one build to completion. It always returns a report; the
// error is non-nil only when the build could not finish.
func (b *Builder) Build(ctx context.Context, opts Options) (*Report, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := newReport(opts.Mode)
	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
	}()

	lock := flock.New(filepath.Join(b.dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		b.setState(StateFailed)
		return report, pkgerr.StoreUnavailable("acquiring build lock", err)
	}
	if !locked {
		return report, pkgerr.New(pkgerr.ErrCodeBuildLocked,
			"another build holds the lock on "+b.dataDir, nil)
	}
	defer lock.Unlock()

	slog.Info("build started",
		slog.String("mode", opts.Mode.String()),
		slog.String("root", b.discoverer.Root()),
		slog.Int("workers", workers))

	jobs, discoveredPaths, err := b.walk(ctx, opts, report)
	if err != nil {
		b.setState(StateIdle)
		return report, err
	}

	if err := b.runPipeline(ctx, workers, opts, jobs, report); err != nil {
		b.finishWithError(err)
		return report, err
	}

	b.setState(StateCommitting)
	if err := b.commit(ctx, opts, discoveredPaths, report); err != nil {
		b.finishWithError(err)
		return report, err
	}

	b.setState(StateIdle)
	slog.Info("build finished",
		slog.Int("embedded", report.TotalEmbedded()),
		slog.Int("pruned", report.Pruned),
		slog.Duration("duration", time.Since(started)))
	return report, nil
}

// walk drains discovery, hashes each candidate, and applies the
// incremental manifest skip. It returns the jobs to process and the
// set of every discovered relative path (including skipped ones) for
// the later prune diff.
func (b *Builder) walk(ctx context.Context, opts Options, report *Report) ([]fileJob, map[string]bool, error) {
	b.setState(StateWalking)

	var manifest map[string]string
	if opts.Mode == ModeIncremental {
		var err error
		manifest, err = b.store.Manifest()
		if err != nil {
			return nil, nil, err
		}
	}

	candidates, err := b.discoverer.Discover(ctx, content.DiscoverOptions{
		Types:             opts.Types,
		IncludeDeprecated: opts.IncludeDeprecated,
	})
	if err != nil {
		return nil, nil, err
	}

	var jobs []fileJob
	discoveredPaths := make(map[string]bool)
	for candidate := range candidates {
		report.addDiscovered(candidate.Type)
		discoveredPaths[candidate.RelPath] = true

		hash, err := hashFile(candidate.AbsPath)
		if err != nil {
			report.addFailed(candidate.Type, candidate.RelPath, err)
			continue
		}
		if manifest != nil && manifest[candidate.RelPath] == hash {
			report.addSkipped(candidate.Type)
			continue
		}
		jobs = append(jobs, fileJob{candidate: candidate, hash: hash})
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return jobs, discoveredPaths, nil
}

// runPipeline fans jobs out to extract-chunk-embed workers and funnels
// their record batches into a single writer.
func (b *Builder) runPipeline(ctx context.Context, workers int, opts Options, jobs []fileJob, report *Report) error {
	b.setState(StateExtracting)

	extractor := &content.Extractor{IncludeDeprecated: opts.IncludeDeprecated}
	jobCh := make(chan fileJob)
	batchCh := make(chan store.Batch, workers)

	var embeddingOnce sync.Once

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workerWG sync.WaitGroup
	workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer workerWG.Done()
			for job := range jobCh {
				if err := gctx.Err(); err != nil {
					return err
				}
				batch, ok := b.processFile(gctx, extractor, job, report, &embeddingOnce)
				if !ok {
					continue
				}
				select {
				case batchCh <- batch:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		workerWG.Wait()
		close(batchCh)
	}()

	// Single writer: batched, transactional upserts. A store failure
	// here is the one thing that fails the whole build.
	g.Go(func() error {
		pending := store.Batch{Manifest: make(map[string]string)}
		flush := func() error {
			if len(pending.Records) == 0 && len(pending.Manifest) == 0 {
				return nil
			}
			if err := b.store.Apply(gctx, pending); err != nil {
				return err
			}
			pending = store.Batch{Manifest: make(map[string]string)}
			return nil
		}

		for batch := range batchCh {
			pending.Records = append(pending.Records, batch.Records...)
			pending.ReplacePaths = append(pending.ReplacePaths, batch.ReplacePaths...)
			for relPath, hash := range batch.Manifest {
				pending.Manifest[relPath] = hash
			}
			if len(pending.Records) >= writerBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	return g.Wait()
}

// processFile extracts, chunks, and embeds one file. Per-file failures
// land in the report and return ok=false.
func (b *Builder) processFile(ctx context.Context, extractor *content.Extractor,
	job fileJob, report *Report, embeddingOnce *sync.Once) (store.Batch, bool) {

	candidate := job.candidate

	docs, err := extractor.Extract(candidate)
	if err != nil {
		slog.Warn("extraction failed",
			slog.String("path", candidate.RelPath),
			slog.String("error", err.Error()))
		report.addFailed(candidate.Type, candidate.RelPath, err)
		return store.Batch{}, false
	}
	if len(docs) == 0 {
		// A changed file can stop yielding documents entirely. Its old
		// records still need replacing, and recording the hash keeps
		// the next incremental run from re-reading it.
		report.addSkipped(candidate.Type)
		return store.Batch{
			Manifest:     map[string]string{candidate.RelPath: job.hash},
			ReplacePaths: []string{candidate.RelPath},
		}, true
	}
	report.addExtracted(candidate.Type, len(docs))

	var chunks []chunker.Chunk
	var owners []content.Document
	for _, doc := range docs {
		for _, chunk := range chunker.Split(doc) {
			chunks = append(chunks, chunk)
			owners = append(owners, doc)
		}
	}

	embeddingOnce.Do(func() { b.setState(StateEmbedding) })

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("embedding failed",
			slog.String("path", candidate.RelPath),
			slog.String("error", err.Error()))
		report.addFailed(candidate.Type, candidate.RelPath, err)
		return store.Batch{}, false
	}

	records := make([]store.IndexRecord, len(chunks))
	for i, chunk := range chunks {
		doc := owners[i]
		records[i] = store.IndexRecord{
			IdentityKey:       chunk.IdentityKey,
			ParentIdentityKey: chunk.ParentIdentityKey,
			ContentType:       doc.ContentType,
			PackName:          doc.PackName,
			RelPath:           doc.RelativePath,
			DisplayName:       doc.DisplayName,
			Description:       doc.Description,
			Excerpt:           truncate(chunk.Text, excerptLimit),
			Metadata:          doc.Metadata,
			Vector:            vectors[i],
		}
	}
	report.addEmbedded(candidate.Type, len(docs))

	// The batch supersedes everything previously indexed for this file:
	// without ReplacePaths a re-extracted file that now yields fewer
	// documents or chunks would keep its removed items searchable.
	return store.Batch{
		Records:      records,
		Manifest:     map[string]string{candidate.RelPath: job.hash},
		ReplacePaths: []string{candidate.RelPath},
	}, true
}

// commit prunes records whose source files vanished and flushes the
// vector index to disk. Builds restricted to a type subset skip the
// prune: their discovery output does not cover the whole manifest, so
// a diff against it would remove live records of other types.
func (b *Builder) commit(ctx context.Context, opts Options, discoveredPaths map[string]bool, report *Report) error {
	if len(opts.Types) > 0 {
		return b.store.Flush()
	}

	manifest, err := b.store.Manifest()
	if err != nil {
		return err
	}

	var stale []string
	for relPath := range manifest {
		if !discoveredPaths[relPath] {
			stale = append(stale, relPath)
		}
	}
	if len(stale) > 0 {
		removed, err := b.store.Prune(ctx, stale)
		if err != nil {
			return err
		}
		report.Pruned = len(removed)
		slog.Info("pruned stale records",
			slog.Int("paths", len(stale)),
			slog.Int("records", len(removed)))
	}

	return b.store.Flush()
}

// hashFile computes the whole-file content hash used for incremental
// skip decisions.
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFileNotFound, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
