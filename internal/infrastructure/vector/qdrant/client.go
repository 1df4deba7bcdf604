package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

// Client searches chunk embeddings stored in a Qdrant collection. Points carry
// document_id, content, chunk_index, page_start and page_end in their payload.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type statusError struct {
	operation  string
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

type searchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (c *Client) VectorQuery(ctx context.Context, embedding []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	reqBody := map[string]any{
		"vector":          embedding,
		"limit":           limit,
		"score_threshold": threshold,
		"with_payload":    true,
	}

	resp, err := resilience.Do(ctx, c.executor, "qdrant.search", func(ctx context.Context) (searchResponse, error) {
		var out searchResponse
		path := fmt.Sprintf("/collections/%s/points/search", c.collection)
		err := c.do(ctx, http.MethodPost, path, reqBody, &out, "search")
		return out, err
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapDataAccess("qdrant search", err)
	}

	out := make([]domain.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Qdrant already filters by score_threshold; this guards older servers.
		if r.Score < threshold {
			continue
		}
		out = append(out, domain.VectorHit{
			ChunkID:    pointID(r.ID),
			DocumentID: getStringPayload(r.Payload, "document_id"),
			Content:    getStringPayload(r.Payload, "content"),
			ChunkIndex: getIntPayload(r.Payload, "chunk_index"),
			PageStart:  getIntPayload(r.Payload, "page_start"),
			PageEnd:    getIntPayload(r.Payload, "page_end"),
			Similarity: r.Score,
		})
	}
	return out, nil
}

// CheckCollection verifies the collection exists.
func (c *Client) CheckCollection(ctx context.Context) error {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, &out, "get collection"); err != nil {
		return wrapDataAccess("qdrant check collection", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     resp.Status,
			body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// classifyQdrantError retries throttling and gateway errors. Client errors such as a
// missing collection are permanent and only 5xx replies count against the breaker.
func classifyQdrantError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.statusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.Transient
		}
		if statusErr.statusCode >= 500 {
			return resilience.Permanent
		}
		return resilience.Ignored
	}
	return resilience.Permanent
}

func wrapDataAccess(operation string, err error) error {
	return resilience.Tag(domain.ErrDataAccess, operation, err, classifyQdrantError)
}

func pointID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) *int {
	switch v := payload[key].(type) {
	case float64:
		n := int(v)
		return &n
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}
