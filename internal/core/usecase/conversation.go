package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

const defaultHistoryMessages = 10

type queryPipeline interface {
	Run(ctx context.Context, req domain.QueryRequest, history []domain.ChatMessage) (*domain.PipelineState, error)
	Stream(ctx context.Context, req domain.QueryRequest, history []domain.ChatMessage) (*domain.PipelineState, *AnswerStream, error)
}

// QueryObserver receives every finished query. Metrics adapters implement it.
type QueryObserver interface {
	ObserveQuery(event domain.QueryEvent)
}

type ConversationOption func(*ConversationService)

func WithQueryEvents(publisher ports.QueryEventPublisher) ConversationOption {
	return func(s *ConversationService) { s.events = publisher }
}

func WithQueryObserver(o QueryObserver) ConversationOption {
	return func(s *ConversationService) { s.observer = o }
}

func WithLogger(logger *slog.Logger) ConversationOption {
	return func(s *ConversationService) { s.logger = logger }
}

// ConversationService wraps the pipeline with session bookkeeping: implicit session
// creation, history loading and appending the exchange once it completes.
type ConversationService struct {
	pipeline     queryPipeline
	sessions     ports.SessionHistory
	events       ports.QueryEventPublisher
	observer     QueryObserver
	logger       *slog.Logger
	historyLimit int
	now          func() time.Time
}

func NewConversationService(
	pipeline queryPipeline,
	sessions ports.SessionHistory,
	historyLimit int,
	options ...ConversationOption,
) *ConversationService {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryMessages
	}
	s := &ConversationService{
		pipeline:     pipeline,
		sessions:     sessions,
		logger:       slog.Default(),
		historyLimit: historyLimit,
		now:          time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *ConversationService) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	started := s.now()
	req, history, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	state, err := s.pipeline.Run(ctx, req, history)
	if err != nil {
		s.finish(ctx, req, nil, "", false, started, err)
		return nil, err
	}

	s.record(ctx, req.SessionID, req.Query, state.Answer, state.Citations)
	s.finish(ctx, req, state, state.Answer, false, started, nil)

	return &domain.QueryResult{
		SessionID:      req.SessionID,
		Answer:         state.Answer,
		Citations:      state.Citations,
		FusedResults:   state.FusedResults,
		Classification: state.Classification,
	}, nil
}

func (s *ConversationService) QueryStream(ctx context.Context, req domain.QueryRequest) (*domain.StreamResult, error) {
	started := s.now()
	req, history, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	state, stream, err := s.pipeline.Stream(ctx, req, history)
	if err != nil {
		s.finish(ctx, req, nil, "", true, started, err)
		return nil, err
	}

	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)

		var answer strings.Builder
		var streamErr error
		forwarding := true
		for ev := range stream.Events() {
			if !forwarding {
				continue
			}
			if ev.Err != nil {
				streamErr = ev.Err
			} else {
				answer.WriteString(ev.Text)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				forwarding = false
			}
		}

		switch {
		case streamErr != nil:
		case ctx.Err() != nil:
			streamErr = ctx.Err()
		default:
			s.record(ctx, req.SessionID, req.Query, answer.String(), state.Citations)
		}
		s.finish(ctx, req, state, answer.String(), true, started, streamErr)
	}()

	return &domain.StreamResult{
		SessionID:      req.SessionID,
		Citations:      state.Citations,
		FusedResults:   state.FusedResults,
		Classification: state.Classification,
		Events:         out,
	}, nil
}

func (s *ConversationService) prepare(ctx context.Context, req domain.QueryRequest) (domain.QueryRequest, []domain.ChatMessage, error) {
	if err := req.Validate(); err != nil {
		return req, nil, err
	}
	req.Query = strings.TrimSpace(req.Query)

	sessionID, err := s.sessions.EnsureSession(ctx, strings.TrimSpace(req.SessionID))
	if err != nil {
		return req, nil, err
	}
	req.SessionID = sessionID

	history, err := s.sessions.LoadHistory(ctx, sessionID, s.historyLimit)
	if err != nil {
		return req, nil, err
	}
	return req, history, nil
}

// record appends the exchange. Persistence failures are logged; the answer stands.
func (s *ConversationService) record(ctx context.Context, sessionID, query, answer string, citations []domain.Citation) {
	now := s.now().UTC()
	messages := []domain.SessionMessage{
		{ID: uuid.NewString(), SessionID: sessionID, Role: domain.RoleUser, Content: query, CreatedAt: now},
		{ID: uuid.NewString(), SessionID: sessionID, Role: domain.RoleAssistant, Content: answer, Citations: citations, CreatedAt: now},
	}
	for _, msg := range messages {
		if err := s.sessions.AppendMessage(ctx, msg); err != nil {
			s.logger.Warn("session_append_failed", "session_id", sessionID, "role", msg.Role, "error", err)
			return
		}
	}
}

func (s *ConversationService) finish(ctx context.Context, req domain.QueryRequest, state *domain.PipelineState, answer string, streamed bool, started time.Time, err error) {
	event := domain.QueryEvent{
		RequestID:  req.RequestID,
		SessionID:  req.SessionID,
		Query:      req.Query,
		Streamed:   streamed,
		DurationMS: s.now().Sub(started).Milliseconds(),
		Status:     domain.QueryStatusAnswered,
		OccurredAt: s.now().UTC(),
	}
	if state != nil {
		event.QueryKind = state.Classification.QueryKind
		event.FusedCount = len(state.FusedResults)
		event.Citations = len(state.Citations)
		if len(state.FusedResults) == 0 {
			event.Status = domain.QueryStatusNoContext
		} else if err == nil {
			event.OutOfScope = IsOutOfScopeAnswer(answer)
		}
	}
	if err != nil {
		event.Status = domain.QueryStatusFailed
		event.Error = err.Error()
	}

	attrs := []any{
		"request_id", event.RequestID,
		"session_id", event.SessionID,
		"query_kind", event.QueryKind,
		"fused_count", event.FusedCount,
		"status", event.Status,
		"streamed", event.Streamed,
		"duration_ms", event.DurationMS,
	}
	if err != nil {
		s.logger.Error("pipeline_failed", append(attrs, "error", err)...)
	} else {
		s.logger.Info("pipeline_completed", append(attrs, "out_of_scope", event.OutOfScope)...)
	}

	if s.observer != nil {
		s.observer.ObserveQuery(event)
	}
	if s.events == nil {
		return
	}
	if pubErr := s.events.PublishQueryCompleted(context.WithoutCancel(ctx), event); pubErr != nil {
		s.logger.Warn("query_event_publish_failed", "request_id", event.RequestID, "error", pubErr)
	}
}
