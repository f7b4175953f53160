package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/index"
	"github.com/packmcp/packmcp/internal/mcp"
	"github.com/packmcp/packmcp/internal/watcher"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	library string
	dataDir string
	offline bool
	watch   bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run packmcp as an MCP server. AI clients connect over stdio and
get search_patterns, find_xql_examples, and index_status tools.

With --watch, the library is watched for changes and the index is
updated incrementally in the background while serving.

Stdout carries the MCP protocol stream; all logging goes to the log
file and stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.library, "library", "L", "", "Content library root (contains Packs/)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Index data directory")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch the library and update the index incrementally")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig(opts.library, opts.dataDir)
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(ctx, cfg, opts.offline)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	st, err := openStoreFor(cfg, embedder)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	engine, err := newEngineFor(cfg, embedder, st)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(engine, st, embedder)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	if opts.watch {
		if cfg.LibraryRoot == "" {
			slog.Warn("--watch requires a library root, skipping watch")
		} else {
			discoverer, err := content.NewDiscoverer(cfg.LibraryRoot)
			if err != nil {
				return err
			}
			builder := index.NewBuilder(discoverer, embedder, st, cfg.DataDir)

			w, err := watcher.NewLibraryWatcher(watcher.Options{})
			if err != nil {
				return err
			}

			group.Go(func() error {
				err := w.Start(gctx, cfg.LibraryRoot)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			group.Go(func() error {
				rebuildOnChange(gctx, w, builder, cfg.Indexing.Workers)
				return nil
			})
		}
	}

	group.Go(func() error {
		defer cancel()
		return server.Serve(gctx, "stdio")
	})

	return group.Wait()
}

// rebuildOnChange runs an incremental build for every debounced batch
// of library changes. Build failures are logged, not fatal; the next
// batch tries again.
func rebuildOnChange(ctx context.Context, w *watcher.LibraryWatcher, builder *index.Builder, workers int) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-w.Events():
			if !ok {
				return
			}
			slog.Info("library changed, rebuilding",
				slog.Int("changed_files", len(events)))

			report, err := builder.Build(ctx, index.Options{
				Mode:    index.ModeIncremental,
				Workers: workers,
			})
			if err != nil {
				slog.Error("incremental rebuild failed",
					slog.String("error", err.Error()))
				continue
			}
			slog.Info("incremental rebuild complete",
				slog.Int("embedded", report.TotalEmbedded()),
				slog.Int("pruned", report.Pruned))
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
