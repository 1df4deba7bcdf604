package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return resilience.Transient
		}
	}
	return resilience.Permanent
}

// wrapTemporaryIfNeeded marks connection-level publish failures as ErrTemporary.
func wrapTemporaryIfNeeded(err error) error {
	return resilience.Tag(nil, "nats publish", err, classifyNATSError)
}
