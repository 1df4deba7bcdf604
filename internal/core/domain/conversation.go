package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn sent to the chat model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionMessage is a stored conversation turn.
type SessionMessage struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (m SessionMessage) ChatMessage() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}

type QueryStatus string

const (
	QueryStatusAnswered  QueryStatus = "answered"
	QueryStatusNoContext QueryStatus = "no_context"
	QueryStatusFailed    QueryStatus = "failed"
)

// QueryEvent is published after a query finishes and persisted by the worker.
type QueryEvent struct {
	RequestID  string      `json:"request_id"`
	SessionID  string      `json:"session_id"`
	Query      string      `json:"query"`
	QueryKind  QueryKind   `json:"query_kind,omitempty"`
	FusedCount int         `json:"fused_count"`
	Citations  int         `json:"citations"`
	OutOfScope bool        `json:"out_of_scope"`
	Streamed   bool        `json:"streamed"`
	DurationMS int64       `json:"duration_ms"`
	Status     QueryStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
