package httpadapter

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

func eventsOf(items ...domain.StreamEvent) <-chan domain.StreamEvent {
	ch := make(chan domain.StreamEvent, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func TestQueryStreamEmitsEventsInOrder(t *testing.T) {
	queries := &queryServiceFake{stream: &domain.StreamResult{
		SessionID: "s-9",
		Citations: []domain.Citation{{DocumentName: "雾都.pdf", PageStart: intPtr(3), PageEnd: intPtr(4)}},
		Events:    eventsOf(domain.StreamEvent{Text: "A"}, domain.StreamEvent{Text: "B"}, domain.StreamEvent{Text: "C"}),
	}}
	res := postJSON(t, newTestHandler(t, queries, classifierFake{}), "/v1/query/stream", `{"query":"谁是凶手"}`)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/event-stream", res.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", res.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", res.Header().Get("Connection"))

	want := `data: {"type":"session_id","session_id":"s-9"}` + "\n\n" +
		`data: {"type":"chunk","content":"A"}` + "\n\n" +
		`data: {"type":"chunk","content":"B"}` + "\n\n" +
		`data: {"type":"chunk","content":"C"}` + "\n\n" +
		`data: {"type":"sources","sources":[{"document_name":"雾都.pdf","page_start":3,"page_end":4}]}` + "\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, res.Body.String())
}

func TestQueryStreamErrorKeepsPartialTextAndTerminates(t *testing.T) {
	queries := &queryServiceFake{stream: &domain.StreamResult{
		SessionID: "s-9",
		Events: eventsOf(
			domain.StreamEvent{Text: "部分"},
			domain.StreamEvent{Err: domain.WrapError(domain.ErrUpstreamModel, "ollama.chat", errors.New("connection reset"))},
		),
	}}
	res := postJSON(t, newTestHandler(t, queries, classifierFake{}), "/v1/query/stream", `{"query":"谁是凶手"}`)

	require.Equal(t, http.StatusOK, res.Code)
	frames := strings.Split(strings.TrimSuffix(res.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 4)
	assert.Equal(t, `data: {"type":"session_id","session_id":"s-9"}`, frames[0])
	assert.Equal(t, `data: {"type":"chunk","content":"部分"}`, frames[1])
	assert.True(t, strings.HasPrefix(frames[2], `data: {"type":"error","error":"`))
	assert.Contains(t, frames[2], "connection reset")
	assert.Equal(t, "data: [DONE]", frames[3])
	assert.NotContains(t, res.Body.String(), `"sources"`)
}

func TestQueryStreamPipelineFailureBecomesErrorEvent(t *testing.T) {
	queries := &queryServiceFake{streamErr: domain.WrapError(domain.ErrDataAccess, "structured query", errors.New("db down"))}
	res := postJSON(t, newTestHandler(t, queries, classifierFake{}), "/v1/query/stream", `{"query":"谁是凶手"}`)

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.True(t, strings.HasPrefix(body, `data: {"type":"error","error":"`))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestQueryStreamRejectsInvalidInputWithStatus(t *testing.T) {
	queries := &queryServiceFake{streamErr: domain.WrapError(domain.ErrSessionNotFound, "ensure session", errors.New("s-x"))}
	res := postJSON(t, newTestHandler(t, queries, classifierFake{}), "/v1/query/stream", `{"query":"谁是凶手","session_id":"s-x"}`)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))

	res = postJSON(t, newTestHandler(t, &queryServiceFake{}, classifierFake{}), "/v1/query/stream", `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestQueryStreamWithoutChunks(t *testing.T) {
	queries := &queryServiceFake{stream: &domain.StreamResult{SessionID: "s-1", Events: eventsOf()}}
	res := postJSON(t, newTestHandler(t, queries, classifierFake{}), "/v1/query/stream", `{"query":"x"}`)

	assert.Equal(t, `data: {"type":"session_id","session_id":"s-1"}`+"\n\n"+
		`data: {"type":"sources","sources":[]}`+"\n\n"+
		"data: [DONE]\n\n", res.Body.String())
}
