package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures count against the breaker but are not retried.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored errors neither retry nor trip the breaker.
	Ignored = ErrorClassification{}
)

// ClassifyCommon settles the cases every adapter treats alike: nil and context errors are
// ignored, an open breaker and network errors are transient. ok is false for anything
// else, leaving the decision to the caller.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return ErrorClassification{}, false
}

// IsTransientHTTPStatus reports statuses worth retrying against an upstream service.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Tag wraps err with the domain kind and adds ErrTemporary when classifier marks it
// retryable or the breaker is open. A nil kind adds only ErrTemporary. Context errors and
// errors already carrying kind are returned unchanged.
func Tag(kind error, operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if kind != nil && errors.Is(err, kind) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	temporary := IsCircuitOpen(err) || classifier(err).Retryable
	switch {
	case kind == nil && temporary:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	case kind == nil:
		return err
	case temporary:
		return fmt.Errorf("%s: %w: %w: %w", operation, kind, domain.ErrTemporary, err)
	default:
		return domain.WrapError(kind, operation, err)
	}
}

func defaultClassifier(error) ErrorClassification {
	return Permanent
}
