package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

func TestClassifyCommon(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		want    ErrorClassification
		settled bool
	}{
		{name: "nil", err: nil, want: Ignored, settled: true},
		{name: "canceled", err: fmt.Errorf("call: %w", context.Canceled), want: Ignored, settled: true},
		{name: "open breaker", err: gobreaker.ErrOpenState, want: Transient, settled: true},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: Transient, settled: true},
		{name: "other", err: errors.New("bad request"), settled: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ClassifyCommon(tc.err)
			if ok != tc.settled {
				t.Fatalf("settled = %v, want %v", ok, tc.settled)
			}
			if ok && got != tc.want {
				t.Fatalf("classification = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestTagAddsKindAndTemporary(t *testing.T) {
	transient := func(error) ErrorClassification { return Transient }
	permanent := func(error) ErrorClassification { return Permanent }
	base := errors.New("boom")

	err := Tag(domain.ErrDataAccess, "qdrant search", base, transient)
	if !errors.Is(err, domain.ErrDataAccess) || !errors.Is(err, domain.ErrTemporary) || !errors.Is(err, base) {
		t.Fatalf("expected data access + temporary, got %v", err)
	}

	err = Tag(domain.ErrUpstreamModel, "ollama chat", base, permanent)
	if !errors.Is(err, domain.ErrUpstreamModel) || errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected upstream without temporary, got %v", err)
	}

	err = Tag(nil, "nats publish", base, transient)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	if got := Tag(nil, "nats publish", base, permanent); got != base {
		t.Fatalf("expected error unchanged, got %v", got)
	}

	if got := Tag(domain.ErrUpstreamModel, "op", context.DeadlineExceeded, transient); got != context.DeadlineExceeded {
		t.Fatalf("context errors must pass through, got %v", got)
	}
	tagged := domain.WrapError(domain.ErrUpstreamModel, "inner", base)
	if got := Tag(domain.ErrUpstreamModel, "outer", tagged, transient); got != tagged {
		t.Fatalf("already tagged error must pass through, got %v", got)
	}
}

func TestConfigNormalizeAndValidate(t *testing.T) {
	got := Config{RetryInitialBackoff: time.Second, RetryMaxBackoff: 10 * time.Millisecond}.normalize()
	if got.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not be below initial backoff, got %v", got.RetryMaxBackoff)
	}
	if got.RetryMaxAttempts != DefaultConfig().RetryMaxAttempts || got.BreakerHalfOpenMaxCalls != 2 {
		t.Fatalf("expected defaults, got %+v", got)
	}

	if err := (Config{BreakerFailureRatio: 1.5}).Validate(); err == nil {
		t.Fatal("expected ratio validation error")
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestBackoffGrowsUntilCap(t *testing.T) {
	e := NewExecutor(Config{
		RetryInitialBackoff: 10 * time.Millisecond,
		RetryMaxBackoff:     35 * time.Millisecond,
		RetryMultiplier:     2,
	})
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}
	for i, w := range want {
		if got := e.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
