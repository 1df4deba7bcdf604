package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

const queueGroup = "query-log-workers"

// Queue publishes and consumes query-completed events as JSON on one subject.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

// Options tune the connection. Zero values select the defaults in withDefaults.
type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "script-kb-assistant"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.RetryOnFailedConnect == nil {
		retry := true
		o.RetryOnFailedConnect = &retry
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) natsOptions() []nats.Option {
	logger := o.Logger
	return []nats.Option{
		nats.Name(o.Name),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(*o.RetryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats_closed")
		}),
	}
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	options = options.withDefaults()

	conn, err := nats.Connect(url, options.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   options.Logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishQueryCompleted(ctx context.Context, event domain.QueryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal query event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, body); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if err := q.executor.Execute(ctx, "nats.publish", call, classifyNATSError); err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeQueryCompleted blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeQueryCompleted(ctx context.Context, handler func(context.Context, domain.QueryEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.QueryEvent) error) {
	var event domain.QueryEvent
	if err := json.Unmarshal(data, &event); err != nil {
		q.logger.Warn("query_event_decode_failed", "subject", q.subject, "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		q.logger.Error("query_event_handler_failed", "request_id", event.RequestID, "error", err)
	}
}
