package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/packmcp/packmcp/internal/store"
	"github.com/packmcp/packmcp/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var dataDir string
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Show per-type document and chunk counts for the current index,
along with the embedding model it was built with.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, dataDir, format)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Index data directory")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runStats(cmd *cobra.Command, dataDir, format string) error {
	renderer := ui.NewRenderer(cmd.OutOrStdout())

	cfg, err := loadConfig("", dataDir)
	if err != nil {
		renderer.Error(err)
		return err
	}

	// Open the index as it was built; no embedder needed for stats.
	pinned, err := store.PinnedConfig(cfg.DataDir)
	if err != nil {
		renderer.Error(err)
		return err
	}

	st, err := store.Open(pinned)
	if err != nil {
		renderer.Error(err)
		return err
	}
	defer func() { _ = st.Close() }()

	stats, err := st.Stats()
	if err != nil {
		renderer.Error(err)
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	renderer.Stats(*stats)
	return nil
}
