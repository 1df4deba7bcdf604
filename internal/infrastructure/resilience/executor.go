package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives retry and breaker transitions, e.g. for metrics.
type Observer interface {
	OnRetry(operation string, attempt int, err error)
	OnBreakerStateChange(operation, from, to string)
}

// Executor applies retries and one circuit breaker per operation name. Operation names
// follow "<backend>.<call>", e.g. "ollama.embed" or "qdrant.search".
type Executor struct {
	cfg      Config
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

type ExecutorOption func(*Executor)

func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

func NewExecutor(cfg Config, options ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute runs fn with retries inside the operation's circuit breaker. A nil executor
// calls fn once.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	if e == nil {
		return fn(ctx)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	run := func() error { return e.retry(ctx, op, fn, classifier) }
	if !e.cfg.BreakerEnabled {
		return run()
	}
	_, err := e.breaker(op, classifier).Execute(func() (any, error) {
		return nil, run()
	})
	return err
}

// Do is Execute for calls that return a value.
func Do[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, classifier)
	return out, err
}

// NonRetrying keeps breaker accounting of classifier but never retries.
func NonRetrying(classifier ErrorClassifier) ErrorClassifier {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return func(err error) ErrorClassification {
		class := classifier(err)
		class.Retryable = false
		return class
	}
}

// retry returns the last fn error once attempts run out, the error is not retryable or
// ctx ends during a backoff.
func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	var err error
	for attempt := 1; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if !classifier(err).Retryable || attempt == e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.backoff(attempt)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if e.observer != nil {
			e.observer.OnRetry(operation, attempt, err)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
	return err
}

// backoff is the wait after the given failed attempt: initial * multiplier^(attempt-1),
// capped at RetryMaxBackoff.
func (e *Executor) backoff(attempt int) time.Duration {
	wait := e.cfg.RetryInitialBackoff
	for i := 1; i < attempt && wait < e.cfg.RetryMaxBackoff; i++ {
		wait = time.Duration(float64(wait) * e.cfg.RetryMultiplier)
	}
	return min(wait, e.cfg.RetryMaxBackoff)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// breaker returns the operation's circuit breaker. The classifier of the first call
// decides which errors count as failures for the breaker's lifetime.
func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.observer != nil {
				e.observer.OnBreakerStateChange(name, from.String(), to.String())
			}
		},
	})
	e.breakers[operation] = cb
	return cb
}
