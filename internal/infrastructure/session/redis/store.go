package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

const (
	defaultKeyPrefix   = "kb:session:"
	defaultTTL         = 24 * time.Hour
	defaultMaxMessages = 200
)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// MaxMessages caps the stored list per session; older turns are trimmed.
	MaxMessages int
}

// Store keeps session history in Redis lists with a sliding TTL.
type Store struct {
	client      *goredis.Client
	prefix      string
	ttl         time.Duration
	maxMessages int64
	now         func() time.Time
}

func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

func New(client *goredis.Client, cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Store{
		client:      client,
		prefix:      defaultKeyPrefix,
		ttl:         ttl,
		maxMessages: int64(maxMessages),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.WrapError(domain.ErrDataAccess, "redis ping", err)
	}
	return nil
}

func (s *Store) sessionKey(id string) string  { return s.prefix + id }
func (s *Store) messagesKey(id string) string { return s.prefix + id + ":messages" }

// EnsureSession creates a session for an empty id and refreshes the TTL of an existing
// one. Expired or unknown ids yield ErrSessionNotFound.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
		if err := s.client.Set(ctx, s.sessionKey(sessionID), s.now().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
			return "", dataAccessError("create session", err)
		}
		return sessionID, nil
	}

	var touched *goredis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		touched = pipe.Expire(ctx, s.sessionKey(sessionID), s.ttl)
		pipe.Expire(ctx, s.messagesKey(sessionID), s.ttl)
		return nil
	})
	if err != nil {
		return "", dataAccessError("touch session", err)
	}
	if !touched.Val() {
		return "", domain.WrapError(domain.ErrSessionNotFound, "ensure session", fmt.Errorf("session %q", sessionID))
	}
	return sessionID, nil
}

func (s *Store) LoadHistory(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []domain.ChatMessage{}, nil
		}
		return nil, dataAccessError("load history", err)
	}

	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.SessionMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, dataAccessError("decode history message", err)
		}
		out = append(out, msg.ChatMessage())
	}
	return out, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg domain.SessionMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal session message: %w", err)
	}

	key := s.messagesKey(msg.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, body)
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, s.sessionKey(msg.SessionID), s.ttl)
		return nil
	})
	if err != nil {
		return dataAccessError("append message", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func dataAccessError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.WrapError(domain.ErrDataAccess, op, err)
}
