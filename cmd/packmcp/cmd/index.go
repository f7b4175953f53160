package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/index"
	"github.com/packmcp/packmcp/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	library           string
	dataDir           string
	incremental       bool
	offline           bool
	includeDeprecated bool
	workers           int
	types             []string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the content index",
		Long: `Build the pattern index over a content library.

A full build indexes every discoverable content item. With
--incremental, files whose content is unchanged since the last build
are skipped and items whose files were deleted are pruned.

Examples:
  packmcp index --library /path/to/content
  packmcp index --library /path/to/content --incremental
  packmcp index --library /path/to/content --type playbook --type script
  packmcp index --library /path/to/content --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.library, "library", "L", "", "Content library root (contains Packs/)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Index data directory")
	cmd.Flags().BoolVarP(&opts.incremental, "incremental", "i", false, "Skip unchanged files and prune deleted ones")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no embedding server needed)")
	cmd.Flags().BoolVar(&opts.includeDeprecated, "include-deprecated", false, "Index deprecated content too")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Extraction worker count (0 = number of CPUs)")
	cmd.Flags().StringSliceVarP(&opts.types, "type", "t", nil, "Restrict to content types (repeatable)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	renderer := ui.NewRenderer(cmd.OutOrStdout())

	cfg, err := loadConfig(opts.library, opts.dataDir)
	if err != nil {
		renderer.Error(err)
		return err
	}
	if opts.includeDeprecated {
		cfg.Indexing.IncludeDeprecated = true
	}

	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	types, err := parseTypes(opts.types)
	if err != nil {
		renderer.Error(err)
		return err
	}

	discoverer, err := content.NewDiscoverer(cfg.LibraryRoot)
	if err != nil {
		renderer.Error(err)
		return err
	}

	embedder, err := newEmbedder(ctx, cfg, opts.offline)
	if err != nil {
		renderer.Error(err)
		return err
	}
	defer func() { _ = embedder.Close() }()

	st, err := openStoreFor(cfg, embedder)
	if err != nil {
		renderer.Error(err)
		return err
	}
	defer func() { _ = st.Close() }()

	mode := index.ModeFull
	if opts.incremental {
		mode = index.ModeIncremental
	}
	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Indexing.Workers
	}

	slog.Info("index build starting",
		slog.String("library", cfg.LibraryRoot),
		slog.String("mode", mode.String()),
		slog.Int("workers", workers))

	builder := index.NewBuilder(discoverer, embedder, st, cfg.DataDir)
	report, err := builder.Build(ctx, index.Options{
		Mode:              mode,
		Workers:           workers,
		IncludeDeprecated: cfg.Indexing.IncludeDeprecated,
		Types:             types,
	})
	if err != nil {
		renderer.Error(err)
		return err
	}

	renderer.Report(report)
	return nil
}
