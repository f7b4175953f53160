package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/search"
	"github.com/packmcp/packmcp/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	dataDir     string
	contentType string
	pack        string
	limit       int
	includeText bool
	offline     bool
	format      string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed content library",
		Long: `Search the pattern index with a natural-language query.

Results are ranked by semantic similarity. The query text is embedded
with the same backend the index was built with, so an index built
with --offline must also be searched with --offline.

Examples:
  packmcp search "enrich an IP with threat intelligence"
  packmcp search "parse firewall syslog" --type parsing_rule
  packmcp search "phishing triage" --pack Phishing --limit 3
  packmcp search "block an indicator" --content --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Index data directory")
	cmd.Flags().StringVarP(&opts.contentType, "type", "t", "", "Filter by content type")
	cmd.Flags().StringVarP(&opts.pack, "pack", "p", "", "Filter by pack name")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (1-50, default 5)")
	cmd.Flags().BoolVarP(&opts.includeText, "content", "c", false, "Include full source file content")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings for the query")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	renderer := ui.NewRenderer(cmd.OutOrStdout())

	cfg, err := loadConfig("", opts.dataDir)
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

	engine, err := newEngineFor(cfg, embedder, st)
	if err != nil {
		renderer.Error(err)
		return err
	}

	result, err := engine.Search(ctx, search.Query{
		Text:            query,
		ContentType:     content.ContentType(opts.contentType),
		Pack:            opts.pack,
		TopK:            opts.limit,
		IncludeFullText: opts.includeText,
	})
	if err != nil {
		renderer.Error(err)
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	renderer.Results(query, result.Results)
	return nil
}
