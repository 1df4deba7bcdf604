package mcpadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

type queryServiceFake struct {
	result  *domain.QueryResult
	err     error
	lastReq domain.QueryRequest
}

func (f *queryServiceFake) Query(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *queryServiceFake) QueryStream(context.Context, domain.QueryRequest) (*domain.StreamResult, error) {
	return nil, errors.New("not used")
}

type classifierFake struct {
	cls domain.IntentClassification
	err error
}

func (f classifierFake) Classify(context.Context, string) (domain.IntentClassification, error) {
	return f.cls, f.err
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestAskRendersAnswerWithSources(t *testing.T) {
	start, end := 3, 5
	queries := &queryServiceFake{result: &domain.QueryResult{
		SessionID:      "s-1",
		Answer:         "凶手是林晚。",
		Citations:      []domain.Citation{{DocumentName: "雾都.pdf", PageStart: &start, PageEnd: &end}, {DocumentName: "主持人手册.docx"}},
		FusedResults:   make([]domain.RankedItem, 2),
		Classification: domain.IntentClassification{QueryKind: domain.QueryHybrid},
	}}
	h := NewHandlers(queries, classifierFake{})

	res, err := h.Ask(context.Background(), mcp.CallToolRequest{}, AskInput{Query: "谁是凶手", SessionID: "s-1"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "凶手是林晚。\n\n来源：\n1. 雾都.pdf 第3-5页\n2. 主持人手册.docx\n\nsession_id: s-1", textOf(t, res))
	assert.Equal(t, "s-1", queries.lastReq.SessionID)

	out, ok := res.StructuredContent.(AskOutput)
	require.True(t, ok)
	assert.Equal(t, domain.QueryHybrid, out.QueryKind)
	assert.Equal(t, 2, out.Results)
}

func TestAskReportsErrorsAsToolErrors(t *testing.T) {
	h := NewHandlers(&queryServiceFake{err: domain.WrapError(domain.ErrUpstreamModel, "chat", errors.New("down"))}, classifierFake{})

	res, err := h.Ask(context.Background(), mcp.CallToolRequest{}, AskInput{Query: "谁是凶手"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "down")

	res, err = h.Ask(context.Background(), mcp.CallToolRequest{}, AskInput{Query: "  "})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestClassifyTool(t *testing.T) {
	era := "民国"
	h := NewHandlers(&queryServiceFake{}, classifierFake{cls: domain.IntentClassification{
		QueryKind: domain.QueryStructured,
		Filters:   domain.ScriptFilters{Era: &era},
	}})

	res, err := h.Classify(context.Background(), mcp.CallToolRequest{}, ClassifyInput{Query: "民国本"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"query_kind":"structured","filters":{"entity_kind":"script","era":"民国"},"semantic_query":""}`, textOf(t, res))
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer("script-kb", "test", NewHandlers(&queryServiceFake{}, classifierFake{}))
	tools := s.ListTools()
	assert.Contains(t, tools, ToolAskKnowledgeBase)
	assert.Contains(t, tools, ToolClassifyQuery)
}
