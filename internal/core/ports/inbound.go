package ports

import (
	"context"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

// QueryService is the inbound contract for answering questions, blocking or streamed.
type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
	QueryStream(ctx context.Context, req domain.QueryRequest) (*domain.StreamResult, error)
}

// IntentClassifier is the inbound contract for classification diagnostics.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) (domain.IntentClassification, error)
}
