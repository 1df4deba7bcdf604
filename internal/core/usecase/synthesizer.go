package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

// Synthesizer turns fused results into a cited answer.
type Synthesizer struct {
	chat ports.ChatModel
}

func NewSynthesizer(chat ports.ChatModel) *Synthesizer {
	return &Synthesizer{chat: chat}
}

// AnswerStream is a single-pass answer. Citations are final before the first event.
type AnswerStream struct {
	Citations []domain.Citation
	events    <-chan domain.StreamEvent
}

// Events is closed after the last fragment or after a terminal error event.
func (s *AnswerStream) Events() <-chan domain.StreamEvent {
	return s.events
}

// Answer generates the full answer in one call. Empty input returns the no-results
// message without invoking the model.
func (s *Synthesizer) Answer(ctx context.Context, query string, fused []domain.RankedItem, history []domain.ChatMessage) (string, []domain.Citation, error) {
	if len(fused) == 0 {
		return FormatNoResultsMessage(query), []domain.Citation{}, nil
	}

	citations := domain.CitationsFromItems(fused)
	answer, err := s.chat.Chat(ctx, buildAnswerMessages(query, fused, history))
	if err != nil {
		return "", nil, upstreamError("synthesize answer", err)
	}
	return answer, citations, nil
}

// Stream starts generation and returns immediately. Model errors arrive as one terminal
// event; cancelling ctx stops the producer.
func (s *Synthesizer) Stream(ctx context.Context, query string, fused []domain.RankedItem, history []domain.ChatMessage) (*AnswerStream, error) {
	if len(fused) == 0 {
		ch := make(chan domain.StreamEvent, 1)
		ch <- domain.StreamEvent{Text: FormatNoResultsMessage(query)}
		close(ch)
		return &AnswerStream{Citations: []domain.Citation{}, events: ch}, nil
	}

	citations := domain.CitationsFromItems(fused)
	messages := buildAnswerMessages(query, fused, history)
	ch := make(chan domain.StreamEvent)

	go func() {
		defer close(ch)
		err := s.chat.ChatStream(ctx, messages, func(text string) error {
			if text == "" {
				return nil
			}
			select {
			case ch <- domain.StreamEvent{Text: text}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err == nil {
			return
		}
		select {
		case ch <- domain.StreamEvent{Err: upstreamError("stream answer", err)}:
		case <-ctx.Done():
		}
	}()

	return &AnswerStream{Citations: citations, events: ch}, nil
}

func upstreamError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if domain.IsKind(err, domain.ErrUpstreamModel) {
		return err
	}
	return domain.WrapError(domain.ErrUpstreamModel, op, err)
}
