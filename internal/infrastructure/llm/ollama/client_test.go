package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

func testConfig(url string) Config {
	return Config{BaseURL: url, ChatModel: "qwen2.5", ClassifierModel: "qwen2.5-cls", EmbedModel: "bge-m3", Temperature: 0.3}
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func TestChatSendsMessagesAndTemperature(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":" 林晚是凶手 "},"done":true}`))
	}))
	defer server.Close()

	model := NewChatModel(New(testConfig(server.URL), nil))
	answer, err := model.Chat(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "谁是凶手"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "林晚是凶手" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if captured.Model != "qwen2.5" || captured.Stream || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request %+v", captured)
	}
	if captured.Options["temperature"] != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", captured.Options["temperature"])
	}
}

func TestChatStreamForwardsFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []string{
			`{"message":{"role":"assistant","content":"A"},"done":false}`,
			``,
			`{"message":{"role":"assistant","content":"B"},"done":false}`,
			`{"message":{"role":"assistant","content":"C"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true}`,
		}
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			w.(http.Flusher).Flush()
		}
	}))
	defer server.Close()

	var got []string
	err := NewChatModel(New(testConfig(server.URL), testExecutor())).ChatStream(context.Background(), nil, func(text string) error {
		got = append(got, text)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if strings.Join(got, "") != "ABC" || len(got) != 3 {
		t.Fatalf("unexpected fragments %v", got)
	}
}

func TestChatStreamMidStreamErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"message":{"content":"A"}}` + "\n"))
		_, _ = w.Write([]byte(`{"error":"model crashed"}` + "\n"))
	}))
	defer server.Close()

	var got string
	err := NewChatModel(New(testConfig(server.URL), testExecutor())).ChatStream(context.Background(), nil, func(text string) error {
		got += text
		return nil
	})
	if !errors.Is(err, domain.ErrUpstreamModel) {
		t.Fatalf("expected upstream model error, got %v", err)
	}
	if got != "A" || calls != 1 {
		t.Fatalf("expected single attempt with partial text, got calls=%d text=%q", calls, got)
	}
}

func TestGenerateStructuredSendsSchemaAndDoesNotRetry(t *testing.T) {
	calls := 0
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_ = json.NewDecoder(r.Body).Decode(&captured)
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":{"content":"{\"query_type\":\"semantic\"}"}}`))
	}))
	defer server.Close()

	gen := NewStructuredGenerator(New(testConfig(server.URL), testExecutor()))
	_, err := gen.GenerateStructured(context.Background(), "prompt", map[string]any{"type": "object"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("classification must not be retried, got %d calls", calls)
	}
	if !errors.Is(err, domain.ErrUpstreamModel) || !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary upstream error, got %v", err)
	}
	if captured["model"] != "qwen2.5-cls" {
		t.Fatalf("expected classifier model, got %v", captured["model"])
	}
	if format, ok := captured["format"].(map[string]any); !ok || format["type"] != "object" {
		t.Fatalf("schema not sent as format: %v", captured["format"])
	}

	out, err := gen.GenerateStructured(context.Background(), "prompt", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}
	if string(out) != `{"query_type":"semantic"}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestEmbedRetriesTransientStatus(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	vec, err := NewEmbedder(New(testConfig(server.URL), testExecutor())).EmbedQuery(context.Background(), "动机")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 2 || calls != 2 {
		t.Fatalf("unexpected result vec=%v calls=%d", vec, calls)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewEmbedder(New(testConfig(server.URL), nil)).Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrUpstreamModel) || errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent upstream error, got %v", err)
	}
}
