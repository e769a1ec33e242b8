package embedder

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrDimensionMismatch is returned when a provider yields vectors of a
// different length than previously observed.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

var errCountMismatch = errors.New("embedding response count mismatch")

// ProviderError is a failure reported by, or while calling, an embedding or
// chat backend.
type ProviderError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{Operation: operation, StatusCode: statusCode, Message: message, Err: err}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt: rate
// limits, server errors, timeouts and transport failures.
func (e *ProviderError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case 0:
		if errors.Is(e.Err, errCountMismatch) {
			return true
		}
		var netErr net.Error
		return errors.As(e.Err, &netErr)
	}
	return false
}

// IsRetryable reports whether err wraps a retryable ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
