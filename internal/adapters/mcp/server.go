package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

const (
	ToolAskKnowledgeBase = "ask_knowledge_base"
	ToolClassifyQuery    = "classify_query"
)

// AskInput is the input of the ask_knowledge_base tool.
type AskInput struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// AskOutput is the structured result of ask_knowledge_base.
type AskOutput struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	QueryKind domain.QueryKind  `json:"query_kind"`
	Citations []domain.Citation `json:"citations"`
	Results   int               `json:"results"`
}

// ClassifyInput is the input of the classify_query tool.
type ClassifyInput struct {
	Query string `json:"query"`
}

type Handlers struct {
	queries    ports.QueryService
	classifier ports.IntentClassifier
}

func NewHandlers(queries ports.QueryService, classifier ports.IntentClassifier) *Handlers {
	return &Handlers{queries: queries, classifier: classifier}
}

// NewServer registers the knowledge-base tools on a new MCP server.
func NewServer(name, version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(ToolAskKnowledgeBase,
		mcp.WithDescription("Answer a question about the script knowledge base (scripts, characters, clues, "+
			"tricks, timelines, endings and host guides). Combines exact filters with semantic search and "+
			"returns a cited answer. Pass session_id from a previous answer to continue a conversation."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question")),
		mcp.WithString("session_id", mcp.Description("Existing session id; omit to start a new session")),
	), mcp.NewTypedToolHandler(h.Ask))

	s.AddTool(mcp.NewTool(ToolClassifyQuery,
		mcp.WithDescription("Show how a question would be routed: structured, semantic or hybrid, with the "+
			"extracted entity filters."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question")),
	), mcp.NewTypedToolHandler(h.Classify))

	return s
}

func (h *Handlers) Ask(ctx context.Context, _ mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, error) {
	if strings.TrimSpace(input.Query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	result, err := h.queries.Query(ctx, domain.QueryRequest{Query: input.Query, SessionID: input.SessionID})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := AskOutput{
		SessionID: result.SessionID,
		Answer:    result.Answer,
		QueryKind: result.Classification.QueryKind,
		Citations: result.Citations,
		Results:   len(result.FusedResults),
	}
	if out.Citations == nil {
		out.Citations = []domain.Citation{}
	}
	return mcp.NewToolResultStructured(out, renderAnswer(out)), nil
}

func (h *Handlers) Classify(ctx context.Context, _ mcp.CallToolRequest, input ClassifyInput) (*mcp.CallToolResult, error) {
	if strings.TrimSpace(input.Query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	cls, err := h.classifier.Classify(ctx, input.Query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filters, err := domain.EncodeFilters(cls.Filters)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	body, err := json.MarshalIndent(map[string]any{
		"query_kind":     cls.QueryKind,
		"filters":        filters,
		"semantic_query": cls.SemanticQuery,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal classification: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

// renderAnswer formats the answer followed by its sources and the session id.
func renderAnswer(out AskOutput) string {
	var b strings.Builder
	b.WriteString(out.Answer)
	if len(out.Citations) > 0 {
		b.WriteString("\n\n来源：\n")
		for i, c := range out.Citations {
			fmt.Fprintf(&b, "%d. %s", i+1, c.DocumentName)
			if label := (domain.Provenance{PageStart: c.PageStart, PageEnd: c.PageEnd}).PageLabel(); label != "" {
				fmt.Fprintf(&b, " 第%s页", label)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nsession_id: %s", out.SessionID)
	return b.String()
}
