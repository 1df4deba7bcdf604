package ports

import (
	"context"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

// StructuredStore runs equality queries against one entity table.
type StructuredStore interface {
	StructuredQuery(ctx context.Context, table string, conditions []domain.FieldCondition, limit int) ([]domain.EntityRow, error)
}

// VectorStore performs nearest-neighbour search over chunk embeddings.
type VectorStore interface {
	VectorQuery(ctx context.Context, embedding []float32, limit int, threshold float64) ([]domain.VectorHit, error)
}

// DocumentDirectory resolves document ids to display names.
type DocumentDirectory interface {
	DocumentNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// StructuredGenerator returns model output constrained to a JSON schema.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any) ([]byte, error)
}

// ChatModel produces answers from a message list.
type ChatModel interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
	// ChatStream calls onChunk for every fragment in order. A non-nil error from onChunk
	// stops the stream and is returned.
	ChatStream(ctx context.Context, messages []domain.ChatMessage, onChunk func(string) error) error
}

// SessionHistory persists conversation turns.
type SessionHistory interface {
	EnsureSession(ctx context.Context, sessionID string) (string, error)
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	AppendMessage(ctx context.Context, msg domain.SessionMessage) error
}

// QueryEventPublisher announces finished queries.
type QueryEventPublisher interface {
	PublishQueryCompleted(ctx context.Context, event domain.QueryEvent) error
}

// QueryEventSubscriber consumes finished-query events.
type QueryEventSubscriber interface {
	SubscribeQueryCompleted(ctx context.Context, handler func(context.Context, domain.QueryEvent) error) error
}

// QueryLogStore persists query events for analytics.
type QueryLogStore interface {
	SaveQueryEvent(ctx context.Context, event domain.QueryEvent) error
}
