package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrUpstreamModel   = errors.New("upstream model error")
	ErrDataAccess      = errors.New("data access error")
	ErrTemporary       = errors.New("temporary failure")

	// ErrSchemaMismatch is reported when structured model output does not match the
	// expected shape. It is a variant of ErrUpstreamModel.
	ErrSchemaMismatch = fmt.Errorf("%w: schema mismatch", ErrUpstreamModel)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
