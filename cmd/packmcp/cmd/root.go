// Package cmd provides the CLI commands for packmcp.
package cmd

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/packmcp/packmcp/internal/config"
	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/embed"
	"github.com/packmcp/packmcp/internal/logging"
	"github.com/packmcp/packmcp/internal/pathguard"
	"github.com/packmcp/packmcp/internal/search"
	"github.com/packmcp/packmcp/internal/store"
	"github.com/packmcp/packmcp/pkg/version"
)

var (
	configPath     string
	logLevel       string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the packmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packmcp",
		Short: "Pattern index and retrieval engine for security content",
		Long: `packmcp indexes a security-content library (playbooks, scripts,
integrations, classifiers, mappers, and XQL rules laid out as
Packs/<pack>/<Category>/...) and answers natural-language pattern
queries over it, either from the command line or as an MCP server
for AI assistants.

Typical flow:
  packmcp index --library /path/to/content
  packmcp search "enrich an IP with threat intel"
  packmcp serve --library /path/to/content`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("packmcp version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./packmcp.yaml, ~/.packmcp/packmcp.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRun = teardown

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads .env and initializes logging before any command runs.
func setup(_ *cobra.Command, _ []string) error {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cleanup, err := logging.SetupDefault(logLevel)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

func teardown(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
	}
}

// loadConfig loads configuration and applies command-line overrides
// that outrank both file and environment.
func loadConfig(library, dataDir string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if library != "" {
		cfg.LibraryRoot = library
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newEmbedder builds the configured embedding backend. offline forces
// the static embedder regardless of configuration.
func newEmbedder(ctx context.Context, cfg *config.Config, offline bool) (embed.Embedder, error) {
	provider := cfg.Embeddings.Provider
	if offline {
		provider = embed.ProviderStatic
	}
	return embed.New(ctx, embed.Config{
		Provider:   provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		APIKey:     cfg.Embeddings.OpenAIAPIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.Embeddings.Timeout,
		MaxRetries: cfg.Embeddings.MaxRetries,
	})
}

// openStoreFor opens the store pinned to the given embedder.
func openStoreFor(cfg *config.Config, embedder embed.Embedder) (*store.Store, error) {
	return store.Open(store.Config{
		DataDir:    cfg.DataDir,
		Dimensions: embedder.Dimensions(),
		Model:      embedder.ModelName(),
	})
}

// newEngineFor wires a search engine with full-text hydration rooted
// at the content checkout when one is configured.
func newEngineFor(cfg *config.Config, embedder embed.Embedder, st *store.Store) (*search.Engine, error) {
	var opts []search.Option
	if root := cfg.EffectiveContentRoot(); root != "" {
		guard, err := newContentGuard(root)
		if err != nil {
			return nil, err
		}
		opts = append(opts, search.WithContentRoot(guard))
	}
	return search.NewEngine(embedder, st, opts...)
}

func newContentGuard(root string) (*pathguard.Guard, error) {
	return pathguard.New(root)
}

// parseTypes converts --type flag values into content types.
func parseTypes(values []string) ([]content.ContentType, error) {
	types := make([]content.ContentType, 0, len(values))
	for _, v := range values {
		t, err := content.ParseType(v)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// buildTimeout bounds a full index build.
const buildTimeout = 2 * time.Hour
