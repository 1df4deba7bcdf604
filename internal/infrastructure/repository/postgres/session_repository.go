package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

// SessionRepository stores conversation turns in chat_sessions/chat_messages.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSession creates a session when sessionID is empty. A provided id must already
// exist; otherwise ErrSessionNotFound is returned.
func (r *SessionRepository) EnsureSession(ctx context.Context, sessionID string) (string, error) {
	now := r.now()
	if sessionID == "" {
		sessionID = uuid.NewString()
		if _, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (id, created_at, updated_at)
VALUES ($1, $2, $2)
`, sessionID, now); err != nil {
			return "", dataAccessError("create session", err)
		}
		return sessionID, nil
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE chat_sessions
SET updated_at = $2
WHERE id = $1
`, sessionID, now)
	if err != nil {
		return "", dataAccessError("touch session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", dataAccessError("touch session rows affected", err)
	}
	if affected == 0 {
		return "", domain.WrapError(domain.ErrSessionNotFound, "ensure session", fmt.Errorf("session %q", sessionID))
	}
	return sessionID, nil
}

func (r *SessionRepository) LoadHistory(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT role, content
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, dataAccessError("load history", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0, limit)
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, dataAccessError("scan history message", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, dataAccessError("iterate history", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *SessionRepository) AppendMessage(ctx context.Context, msg domain.SessionMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	citations := msg.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	body, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, citations, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
`, msg.ID, msg.SessionID, msg.Role, msg.Content, string(body), msg.CreatedAt)
	if err != nil {
		return dataAccessError("append message", err)
	}
	return nil
}
