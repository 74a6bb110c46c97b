package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/hybridrag/internal/search"
	"github.com/Aman-CERP/hybridrag/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "hybridrag"

// Tool names.
const (
	ToolRetrieve        = "retrieve"
	ToolRetrieveContext = "retrieve_context"
	ToolIndexStats      = "index_stats"
)

// Server bridges AI clients with the retrieval engine.
type Server struct {
	mcp    *mcp.Server
	engine search.Retriever
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolRetrieve,
		Description: "Search the HAProxy documentation. Combines semantic and keyword search, " +
			"reranks the candidates and returns scored chunks with their URLs. " +
			"Check low_confidence before answering from the results.",
	},
	{
		Name: ToolRetrieveContext,
		Description: "Search the HAProxy documentation and return the best chunks as one context " +
			"block with numbered [Source i: title - url] headers and the matching citations.",
	},
	{
		Name:        ToolIndexStats,
		Description: "Report the loaded documentation sources, chunk counts and active components.",
	},
}

// NewServer creates a new MCP server.
func NewServer(engine search.Retriever) (*Server, error) {
	if engine == nil {
		return nil, errors.New("retrieval engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// its markdown or structured output.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolRetrieve:
		var in RetrieveInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleRetrieveTool(ctx, in)
	case ToolRetrieveContext:
		var in RetrieveContextInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleRetrieveContext(ctx, in)
	case ToolIndexStats:
		return s.handleIndexStats(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// handleRetrieveTool runs a query and returns markdown-formatted results.
func (s *Server) handleRetrieveTool(ctx context.Context, in RetrieveInput) (string, error) {
	result, err := s.retrieve(ctx, ToolRetrieve, in)
	if err != nil {
		return "", err
	}
	return FormatResults(in.Query, result), nil
}

// retrieve validates the input, runs the engine and logs the outcome.
func (s *Server) retrieve(ctx context.Context, tool string, in RetrieveInput) (*search.RetrievalResult, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	topK := clampTopK(in.TopK)

	s.logger.Info("tool_started",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		slog.Int("top_k", topK),
		slog.String("source", in.Source))

	result, err := s.engine.Retrieve(ctx, in.Query, search.RetrieveOptions{
		TopK:    topK,
		Source:  in.Source,
		Explain: in.Explain,
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("tool_failed",
			slog.String("tool", tool),
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("tool_completed",
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(result.Results)),
		slog.Bool("low_confidence", result.LowConfidence))
	return result, nil
}

// handleRetrieveContext builds the context block for a query.
func (s *Server) handleRetrieveContext(ctx context.Context, in RetrieveContextInput) (*RetrieveContextOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()

	text, sources, low, err := s.engine.RetrieveContextString(ctx, in.Query, search.RetrieveOptions{
		TopK:   clampTopK(in.TopK),
		Source: in.Source,
	})
	if err != nil {
		s.logger.Error("tool_failed",
			slog.String("tool", ToolRetrieveContext),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	if sources == nil {
		sources = []search.SourceRef{}
	}

	s.logger.Info("tool_completed",
		slog.String("tool", ToolRetrieveContext),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("sources", len(sources)),
		slog.Bool("low_confidence", low))

	return &RetrieveContextOutput{Context: text, Sources: sources, LowConfidence: low}, nil
}

// handleIndexStats reports the engine statistics.
func (s *Server) handleIndexStats() *StatsOutput {
	st := s.engine.Stats()
	sources := st.Sources
	if sources == nil {
		sources = map[string]int{}
	}
	out := &StatsOutput{
		Chunks:          st.Chunks,
		Sources:         sources,
		LexicalDocs:     st.LexicalDocs,
		DenseBackend:    st.DenseBackend,
		EmbeddingModel:  st.EmbeddingModel,
		RerankerEnabled: st.RerankerEnabled,
	}
	if q := st.Queries; q != nil {
		out.TotalQueries = q.TotalQueries
		out.LowConfidenceQueries = q.LowConfidenceCount
		out.FallbackQueries = q.FallbackCount
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpRetrieveHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpRetrieveContextHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpRetrieveHandler is the MCP SDK handler for the retrieve tool.
func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	result, err := s.retrieve(ctx, ToolRetrieve, input)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	return nil, ToRetrieveOutput(result), nil
}

// mcpRetrieveContextHandler is the MCP SDK handler for the retrieve_context tool.
func (s *Server) mcpRetrieveContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveContextInput) (
	*mcp.CallToolResult,
	*RetrieveContextOutput,
	error,
) {
	output, err := s.handleRetrieveContext(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

// mcpIndexStatsHandler is the MCP SDK handler for the index_stats tool.
func (s *Server) mcpIndexStatsHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	*StatsOutput,
	error,
) {
	return nil, s.handleIndexStats(), nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
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
