package ollama

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx reply from the Ollama API.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	msg := fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// classifyOllamaError retries overloaded or unavailable model servers. Other 4xx/5xx
// replies (unknown model, bad request) neither retry nor trip the breaker.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if resilience.IsTransientHTTPStatus(statusErr.StatusCode) {
			return resilience.Transient
		}
		return resilience.Ignored
	}
	return resilience.Permanent
}

func wrapUpstreamError(operation string, err error) error {
	return resilience.Tag(domain.ErrUpstreamModel, operation, err, classifyOllamaError)
}
