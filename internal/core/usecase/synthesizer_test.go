package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

func drain(t *testing.T, stream *AnswerStream) (string, error) {
	t.Helper()
	var b strings.Builder
	var streamErr error
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return b.String(), streamErr
			}
			if ev.Err != nil {
				streamErr = ev.Err
				continue
			}
			b.WriteString(ev.Text)
		case <-timeout:
			t.Fatalf("stream did not terminate")
		}
	}
}

func TestSynthesizerEmptyShortCircuit(t *testing.T) {
	chat := &chatModelFake{answer: "should not be used"}
	synth := NewSynthesizer(chat)

	answer, citations, err := synth.Answer(context.Background(), "谁是凶手", nil, nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != FormatNoResultsMessage("谁是凶手") {
		t.Fatalf("unexpected fallback %q", answer)
	}
	if citations == nil || len(citations) != 0 {
		t.Fatalf("expected empty citations, got %#v", citations)
	}

	stream, err := synth.Stream(context.Background(), "谁是凶手", []domain.RankedItem{}, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(stream.Citations) != 0 {
		t.Fatalf("expected empty stream citations")
	}
	text, streamErr := drain(t, stream)
	if streamErr != nil || text != FormatNoResultsMessage("谁是凶手") {
		t.Fatalf("unexpected stream fallback %q err=%v", text, streamErr)
	}
	if chat.callCount() != 0 {
		t.Fatalf("model must not be called for empty input, got %d calls", chat.callCount())
	}
}

func TestSynthesizerAnswerBuildsMessages(t *testing.T) {
	chat := &chatModelFake{answer: "林晚是凶手 [来源: 雾都.pdf 第3页]"}
	synth := NewSynthesizer(chat)
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "上一个问题"},
		{Role: domain.RoleAssistant, Content: "上一个回答"},
	}
	fused := []domain.RankedItem{
		chunkItem("a", "雾都.pdf", 3, 3),
		chunkItem("b", "雾都.pdf", 3, 3),
		chunkItem("c", "雾都.pdf", 4, 6),
	}

	answer, citations, err := synth.Answer(context.Background(), "谁是凶手", fused, history)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != chat.answer {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(citations) != 2 {
		t.Fatalf("expected 2 deduplicated citations, got %d", len(citations))
	}

	msgs := chat.messages
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleSystem || !strings.Contains(msgs[0].Content, "[来源:") {
		t.Fatalf("unexpected system message %+v", msgs[0])
	}
	if msgs[1].Content != "上一个问题" || msgs[2].Content != "上一个回答" {
		t.Fatalf("history out of order: %+v", msgs[1:3])
	}
	user := msgs[3].Content
	for _, want := range []string{"[1] source: 雾都.pdf (page 3)\n", "[3] source: 雾都.pdf (page 4-6)\n", "谁是凶手"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestSynthesizerAnswerWrapsModelError(t *testing.T) {
	synth := NewSynthesizer(&chatModelFake{err: errors.New("boom")})
	_, _, err := synth.Answer(context.Background(), "q", []domain.RankedItem{chunkItem("a", "d", 1, 1)}, nil)
	if !errors.Is(err, domain.ErrUpstreamModel) {
		t.Fatalf("expected upstream model error, got %v", err)
	}
}

func TestSynthesizerStreamConcatenatesFragments(t *testing.T) {
	gate := make(chan struct{})
	chat := &chatModelFake{fragments: []string{"A", "B", "C"}, gate: gate}
	synth := NewSynthesizer(chat)
	fused := []domain.RankedItem{chunkItem("a", "雾都.pdf", 1, 2)}

	stream, err := synth.Stream(context.Background(), "q", fused, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	// Citations are available before any fragment is produced.
	if len(stream.Citations) != 1 || stream.Citations[0].DocumentName != "雾都.pdf" {
		t.Fatalf("unexpected citations %#v", stream.Citations)
	}

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			gate <- struct{}{}
		}
	}()

	text, streamErr := drain(t, stream)
	if streamErr != nil {
		t.Fatalf("unexpected stream error %v", streamErr)
	}
	if text != "ABC" {
		t.Fatalf("expected ABC, got %q", text)
	}
	if got := domain.CitationsFromItems(fused); len(got) != len(stream.Citations) {
		t.Fatalf("citations differ from precomputed value")
	}
}

func TestSynthesizerStreamErrorIsTerminalEvent(t *testing.T) {
	chat := &chatModelFake{fragments: []string{"部分"}, streamErr: errors.New("connection reset")}
	stream, err := NewSynthesizer(chat).Stream(context.Background(), "q", []domain.RankedItem{chunkItem("a", "d", 1, 1)}, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var events []domain.StreamEvent
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected fragment + error, got %d events", len(events))
	}
	if events[0].Text != "部分" {
		t.Fatalf("partial text lost: %+v", events[0])
	}
	if !errors.Is(events[1].Err, domain.ErrUpstreamModel) {
		t.Fatalf("expected upstream error event, got %+v", events[1])
	}
}

func TestSynthesizerStreamStopsOnCancel(t *testing.T) {
	gate := make(chan struct{})
	chat := &chatModelFake{fragments: []string{"A", "B"}, gate: gate}
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := NewSynthesizer(chat).Stream(ctx, "q", []domain.RankedItem{chunkItem("a", "d", 1, 1)}, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-waitClosed(stream.Events()):
		if ok {
			t.Fatalf("unexpected value")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("producer did not stop after cancellation")
	}
}

func waitClosed(events <-chan domain.StreamEvent) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()
	return done
}

func TestBuildContextBlocksWithoutPages(t *testing.T) {
	item := domain.RankedItem{
		ID:         "x",
		Kind:       domain.KindClue,
		Payload:    domain.CluePayload{Name: "带血的手帕"},
		Provenance: domain.Provenance{DocumentName: "线索卡.pdf"},
	}
	got := buildContextBlocks([]domain.RankedItem{item})
	want := "[1] source: 线索卡.pdf\n{\"name\":\"带血的手帕\"}"
	if got != want {
		t.Fatalf("unexpected context block:\n%q\nwant\n%q", got, want)
	}
}
