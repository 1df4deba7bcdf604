package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

// SaveQueryEvent is idempotent per request id so redelivered events are harmless.
func (r *QueryLogRepository) SaveQueryEvent(ctx context.Context, event domain.QueryEvent) error {
	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_log (
	request_id, session_id, query, query_kind, fused_count, citations,
	out_of_scope, streamed, duration_ms, status, error_message, occurred_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (request_id) DO NOTHING
`,
		event.RequestID,
		event.SessionID,
		event.Query,
		nullableString(string(event.QueryKind)),
		event.FusedCount,
		event.Citations,
		event.OutOfScope,
		event.Streamed,
		event.DurationMS,
		string(event.Status),
		nullableString(event.Error),
		event.OccurredAt,
	)
	if err != nil {
		return dataAccessError("save query event", err)
	}
	return nil
}
