package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/embed"
	"github.com/packmcp/packmcp/internal/search"
	"github.com/packmcp/packmcp/internal/store"
	"github.com/packmcp/packmcp/pkg/version"
)

const serverName = "packmcp"

// Server is the MCP server for packmcp. It bridges AI clients with
// the pattern index over stdio.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	store    *store.Store
	embedder embed.Embedder
	logger   *slog.Logger
}

// SearchInput defines the input schema for the search_patterns tool.
type SearchInput struct {
	Query       string `json:"query" jsonschema:"natural language description of the pattern to find"`
	ContentType string `json:"content_type,omitempty" jsonschema:"filter by content type: playbook, script, integration, classifier, mapper, parsing_rule, modeling_rule"`
	Pack        string `json:"pack,omitempty" jsonschema:"filter by pack name"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 50, default 5"`
	IncludeText bool   `json:"include_text,omitempty" jsonschema:"include the full source file content of each result"`
}

// XQLInput defines the input schema for the find_xql_examples tool.
type XQLInput struct {
	Query    string `json:"query" jsonschema:"natural language description of the XQL logic to find"`
	RuleKind string `json:"rule_kind,omitempty" jsonschema:"restrict to one rule kind: parsing or modeling"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 50, default 5"`
}

// StatusInput is the (empty) input schema for index_status.
type StatusInput struct{}

// SearchOutput defines the output schema shared by the search tools.
type SearchOutput struct {
	Results []ResultOutput `json:"results" jsonschema:"ranked list of matching content items"`
}

// ResultOutput is one ranked result.
type ResultOutput struct {
	IdentityKey  string            `json:"identity_key" jsonschema:"stable identifier of the content item"`
	DisplayName  string            `json:"display_name" jsonschema:"human-readable name"`
	ContentType  string            `json:"content_type" jsonschema:"content type of the item"`
	Pack         string            `json:"pack" jsonschema:"pack the item belongs to"`
	RelativePath string            `json:"relative_path" jsonschema:"path relative to the library root"`
	Score        float32           `json:"score" jsonschema:"relevance score between 0 and 1"`
	Excerpt      string            `json:"excerpt" jsonschema:"short excerpt of the indexed text"`
	FullText     string            `json:"full_text,omitempty" jsonschema:"full source file content when requested"`
	Metadata     map[string]string `json:"metadata,omitempty" jsonschema:"extracted item metadata"`
}

// StatusOutput defines the output schema for index_status.
type StatusOutput struct {
	TotalDocuments int            `json:"total_documents" jsonschema:"number of indexed documents"`
	TotalChunks    int            `json:"total_chunks" jsonschema:"number of indexed chunks"`
	PerType        map[string]int `json:"per_type" jsonschema:"document count per content type"`
	EmbeddingModel string         `json:"embedding_model" jsonschema:"embedding model the index was built with"`
	Dimensions     int            `json:"dimensions" jsonschema:"embedding vector width"`
	EmbedderReady  bool           `json:"embedder_ready" jsonschema:"whether the embedding backend is reachable"`
}

// NewServer creates a new MCP server over the given engine and store.
func NewServer(engine *search.Engine, st *store.Store, embedder embed.Embedder) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}

	s := &Server{
		engine:   engine,
		store:    st,
		embedder: embedder,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_patterns",
		Description: "Find reference implementations in the indexed content library. Describe what you want to build (e.g. 'enrich an IP with threat intel') and get the most similar playbooks, scripts, integrations, classifiers, and mappers, ranked by semantic relevance.",
	}, s.searchPatternsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_xql_examples",
		Description: "Find XQL parsing and modeling rule examples. Describe the dataset or transformation and get the closest existing rules to use as a starting point.",
	}, s.findXQLHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Check whether the content index is built and which embedding backend is active. Use before searching to verify the index is ready.",
	}, s.indexStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

func (s *Server) searchPatternsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search_patterns started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", input.Limit))

	result, err := s.engine.Search(ctx, search.Query{
		Text:            input.Query,
		ContentType:     content.ContentType(input.ContentType),
		Pack:            input.Pack,
		TopK:            input.Limit,
		IncludeFullText: input.IncludeText,
	})
	if err != nil {
		s.logger.Error("search_patterns failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search_patterns completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(result.Results)))

	return nil, toSearchOutput(result.Results), nil
}

func (s *Server) findXQLHandler(ctx context.Context, _ *mcp.CallToolRequest, input XQLInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	var kinds []content.ContentType
	switch input.RuleKind {
	case "parsing":
		kinds = []content.ContentType{content.TypeParsingRule}
	case "modeling":
		kinds = []content.ContentType{content.TypeModelingRule}
	case "":
		kinds = []content.ContentType{content.TypeParsingRule, content.TypeModelingRule}
	default:
		return nil, SearchOutput{}, NewInvalidParamsError(
			fmt.Sprintf("unknown rule_kind %q, expected parsing or modeling", input.RuleKind))
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("find_xql_examples started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("rule_kind", input.RuleKind))

	// One search covers both kinds: the query text is embedded once
	// and both rule types compete for the same result slots.
	result, err := s.engine.Search(ctx, search.Query{
		Text:         input.Query,
		ContentTypes: kinds,
		TopK:         input.Limit,
	})
	if err != nil {
		s.logger.Error("find_xql_examples failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("find_xql_examples completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(result.Results)))

	return nil, toSearchOutput(result.Results), nil
}

func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	stats, err := s.store.Stats()
	if err != nil {
		return nil, nil, MapError(err)
	}

	output := &StatusOutput{
		TotalDocuments: stats.TotalDocuments,
		TotalChunks:    stats.TotalChunks,
		PerType:        make(map[string]int, len(stats.PerType)),
		EmbeddingModel: stats.EmbeddingModel,
		Dimensions:     stats.Dimensions,
	}
	for t, ts := range stats.PerType {
		output.PerType[string(t)] = ts.Documents
	}
	if s.embedder != nil {
		output.EmbedderReady = s.embedder.Available(ctx)
	}

	return nil, output, nil
}

func toSearchOutput(results []search.Result) SearchOutput {
	output := SearchOutput{Results: make([]ResultOutput, 0, len(results))}
	for _, r := range results {
		output.Results = append(output.Results, ResultOutput{
			IdentityKey:  r.IdentityKey,
			DisplayName:  r.DisplayName,
			ContentType:  string(r.ContentType),
			Pack:         r.PackName,
			RelativePath: r.RelativePath,
			Score:        r.Score,
			Excerpt:      r.Excerpt,
			FullText:     r.FullText,
			Metadata:     r.Metadata,
		})
	}
	return output
}

// Serve runs the server on the given transport until the context is
// cancelled. Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("version", version.Version))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
