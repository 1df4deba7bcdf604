package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

// Config is the explicit provider configuration for one Ollama endpoint.
type Config struct {
	BaseURL         string
	ChatModel       string
	ClassifierModel string
	EmbedModel      string
	Temperature     float64
	Timeout         time.Duration
}

type Client struct {
	baseURL    string
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client. executor may be nil to disable retries and circuit breaking.
func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = cfg.ChatModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		// No whole-request timeout: streamed bodies are bounded by ctx.
		httpClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
		}},
		executor: executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   any            `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

func toChatMessages(messages []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (m *ChatModel) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	req := chatRequest{
		Model:    m.client.cfg.ChatModel,
		Messages: toChatMessages(messages),
		Stream:   false,
		Options:  map[string]any{"temperature": m.client.cfg.Temperature},
	}

	resp, err := resilience.Do(ctx, m.client.executor, "ollama.chat", func(ctx context.Context) (chatResponse, error) {
		var out chatResponse
		err := m.client.postJSON(ctx, "/api/chat", req, &out, "chat")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return "", wrapUpstreamError("ollama chat", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// ChatStream reads the NDJSON chat stream and forwards each content fragment. Retries
// apply only until the first fragment has been delivered.
func (m *ChatModel) ChatStream(ctx context.Context, messages []domain.ChatMessage, onChunk func(string) error) error {
	req := chatRequest{
		Model:    m.client.cfg.ChatModel,
		Messages: toChatMessages(messages),
		Stream:   true,
		Options:  map[string]any{"temperature": m.client.cfg.Temperature},
	}

	emitted := false
	classifier := func(err error) resilience.ErrorClassification {
		class := classifyOllamaError(err)
		if emitted {
			class.Retryable = false
		}
		return class
	}

	err := m.client.executor.Execute(ctx, "ollama.chat_stream", func(ctx context.Context) error {
		return m.client.postStream(ctx, "/api/chat", req, "chat stream", func(line []byte) error {
			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				return fmt.Errorf("decode chat stream chunk: %w", err)
			}
			if chunk.Error != "" {
				return fmt.Errorf("ollama chat stream: %s", chunk.Error)
			}
			if chunk.Message.Content == "" {
				return nil
			}
			emitted = true
			return onChunk(chunk.Message.Content)
		})
	}, classifier)
	if err != nil {
		return wrapUpstreamError("ollama chat stream", err)
	}
	return nil
}

type StructuredGenerator struct {
	client *Client
}

func NewStructuredGenerator(client *Client) *StructuredGenerator {
	return &StructuredGenerator{client: client}
}

// GenerateStructured asks the classifier model for output constrained by schema. The
// call is never retried.
func (g *StructuredGenerator) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) ([]byte, error) {
	req := chatRequest{
		Model:    g.client.cfg.ClassifierModel,
		Messages: []chatMessage{{Role: domain.RoleUser, Content: prompt}},
		Stream:   false,
		Format:   schema,
		Options:  map[string]any{"temperature": 0},
	}

	resp, err := resilience.Do(ctx, g.client.executor, "ollama.classify", func(ctx context.Context) (chatResponse, error) {
		var out chatResponse
		err := g.client.postJSON(ctx, "/api/chat", req, &out, "classify")
		return out, err
	}, resilience.NonRetrying(classifyOllamaError))
	if err != nil {
		return nil, wrapUpstreamError("ollama classify", err)
	}
	return []byte(extractJSONObject(resp.Message.Content)), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.cfg.EmbedModel,
		"input": texts,
	}

	type embedResponse struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	resp, err := resilience.Do(ctx, e.client.executor, "ollama.embed", func(ctx context.Context) (embedResponse, error) {
		var out embedResponse
		err := e.client.postJSON(ctx, "/api/embed", request, &out, "embed")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapUpstreamError("ollama embed", err)
	}
	return resp.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrUpstreamModel, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
