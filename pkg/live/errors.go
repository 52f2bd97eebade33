package live

import (
	"errors"
	"fmt"
)

// Sentinel errors for the live package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("live: API key is required")

	// ErrNotConnected indicates the client has no open connection.
	ErrNotConnected = errors.New("live: not connected")

	// ErrAlreadyOpened indicates Open was called twice on one client.
	ErrAlreadyOpened = errors.New("live: client already opened")

	// ErrClosed indicates the client was closed locally.
	ErrClosed = errors.New("live: client closed")

	// ErrQueueFull indicates too many frames were sent before the
	// connection opened.
	ErrQueueFull = errors.New("live: outbound queue full")
)

// ConnectionError represents a WebSocket connection error.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("live: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("live: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrClosed)
}
