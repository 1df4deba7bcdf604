package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

const maxRequestBodyBytes = 1 << 20

// HTTPMetrics is the subset of the metrics adapter the router needs.
type HTTPMetrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

type RouterOption func(*Router)

func WithMetrics(m HTTPMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) { rt.logger = logger }
}

type Router struct {
	queries    ports.QueryService
	classifier ports.IntentClassifier
	metrics    HTTPMetrics
	logger     *slog.Logger
	validator  *requestValidator
}

func NewRouter(queries ports.QueryService, classifier ports.IntentClassifier, options ...RouterOption) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	rt := &Router{
		queries:    queries,
		classifier: classifier,
		logger:     slog.Default(),
		validator:  validator,
	}
	for _, opt := range options {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	mux.HandleFunc("POST /v1/query", rt.query)
	mux.HandleFunc("POST /v1/query/stream", rt.queryStream)
	mux.HandleFunc("POST /v1/classify", rt.classify)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var h http.Handler = rt.validator.middleware(mux)
	h = recoverMiddleware(rt.logger, h)
	if rt.metrics != nil {
		h = rt.metrics.Middleware(h)
	}
	h = accessLogMiddleware(rt.logger, h)
	return requestIDMiddleware(h)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(OpenAPISpec())
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type classificationResponse struct {
	QueryKind     domain.QueryKind `json:"query_kind"`
	Filters       json.RawMessage  `json:"filters"`
	SemanticQuery string           `json:"semantic_query,omitempty"`
}

type queryResponse struct {
	SessionID      string                 `json:"session_id"`
	Answer         string                 `json:"answer"`
	Citations      []domain.Citation      `json:"citations"`
	Results        []domain.RankedItem    `json:"results"`
	Classification classificationResponse `json:"classification"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := rt.queries.Query(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cls, err := toClassificationResponse(result.Classification)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := queryResponse{
		SessionID:      result.SessionID,
		Answer:         result.Answer,
		Citations:      nonNilCitations(result.Citations),
		Results:        result.FusedResults,
		Classification: cls,
	}
	if resp.Results == nil {
		resp.Results = []domain.RankedItem{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(w, r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cls, err := rt.classifier.Classify(r.Context(), req.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp, err := toClassificationResponse(cls)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (domain.QueryRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("request body is empty")
		}
		return domain.QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	req := domain.QueryRequest{
		Query:     body.Query,
		SessionID: body.SessionID,
		RequestID: requestIDFromContext(r.Context()),
	}
	if err := req.Validate(); err != nil {
		return domain.QueryRequest{}, err
	}
	return req, nil
}

func toClassificationResponse(cls domain.IntentClassification) (classificationResponse, error) {
	filters, err := domain.EncodeFilters(cls.Filters)
	if err != nil {
		return classificationResponse{}, fmt.Errorf("encode filters: %w", err)
	}
	return classificationResponse{
		QueryKind:     cls.QueryKind,
		Filters:       filters,
		SemanticQuery: cls.SemanticQuery,
	}, nil
}

func nonNilCitations(in []domain.Citation) []domain.Citation {
	if in == nil {
		return []domain.Citation{}
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
