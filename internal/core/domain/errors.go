package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid input")
	ErrNotFound            = errors.New("document not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidState        = errors.New("operation not valid for current status")
	ErrUpstreamUnavailable = errors.New("extraction service unavailable")
	ErrUpstreamRejected    = errors.New("extraction service rejected request")
	ErrPersistence         = errors.New("persistence failure")
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
