package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

type structuredStoreFake struct {
	table      string
	conditions []domain.FieldCondition
	limit      int
	rows       []domain.EntityRow
	err        error
	calls      int
}

func (f *structuredStoreFake) StructuredQuery(_ context.Context, table string, conditions []domain.FieldCondition, limit int) ([]domain.EntityRow, error) {
	f.calls++
	f.table = table
	f.conditions = conditions
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type embedderFake struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type vectorStoreFake struct {
	limit     int
	threshold float64
	hits      []domain.VectorHit
	err       error
}

func (f *vectorStoreFake) VectorQuery(_ context.Context, _ []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	f.limit = limit
	f.threshold = threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type documentDirectoryFake struct {
	ids   []string
	names map[string]string
	err   error
}

func (f *documentDirectoryFake) DocumentNames(_ context.Context, ids []string) (map[string]string, error) {
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

type structuredGeneratorFake struct {
	prompt string
	schema map[string]any
	out    string
	err    error
}

func (f *structuredGeneratorFake) GenerateStructured(_ context.Context, prompt string, schema map[string]any) ([]byte, error) {
	f.prompt = prompt
	f.schema = schema
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

type chatModelFake struct {
	mu        sync.Mutex
	calls     int
	messages  []domain.ChatMessage
	answer    string
	fragments []string
	streamErr error
	err       error
	// gate, when set, is received from before each fragment is emitted.
	gate chan struct{}
}

func (f *chatModelFake) Chat(_ context.Context, messages []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *chatModelFake) ChatStream(ctx context.Context, messages []domain.ChatMessage, onChunk func(string) error) error {
	f.mu.Lock()
	f.calls++
	f.messages = messages
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, fragment := range f.fragments {
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := onChunk(fragment); err != nil {
			return err
		}
	}
	return f.streamErr
}

func (f *chatModelFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sessionHistoryFake struct {
	mu        sync.Mutex
	ensured   []string
	history   []domain.ChatMessage
	appended  []domain.SessionMessage
	ensureErr error
	appendErr error
}

func (f *sessionHistoryFake) EnsureSession(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	if sessionID == "" {
		sessionID = "generated-session"
	}
	f.ensured = append(f.ensured, sessionID)
	return sessionID, nil
}

func (f *sessionHistoryFake) LoadHistory(_ context.Context, _ string, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) > limit {
		return f.history[len(f.history)-limit:], nil
	}
	return f.history, nil
}

func (f *sessionHistoryFake) AppendMessage(_ context.Context, msg domain.SessionMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, msg)
	return nil
}

func (f *sessionHistoryFake) appendedMessages() []domain.SessionMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionMessage, len(f.appended))
	copy(out, f.appended)
	return out
}

type eventPublisherFake struct {
	mu     sync.Mutex
	events []domain.QueryEvent
	err    error
}

func (f *eventPublisherFake) PublishQueryCompleted(_ context.Context, event domain.QueryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *eventPublisherFake) published() []domain.QueryEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QueryEvent, len(f.events))
	copy(out, f.events)
	return out
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func chunkItem(id, doc string, start, end int) domain.RankedItem {
	return domain.RankedItem{
		ID:         id,
		Kind:       domain.KindChunk,
		Payload:    domain.ChunkPayload{Content: "content " + id},
		Provenance: domain.Provenance{DocumentName: doc, PageStart: intPtr(start), PageEnd: intPtr(end)},
		Score:      0.9,
	}
}
