package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoKeys is returned when no API key is configured anywhere.
	ErrNoKeys = errors.New("inference: no API keys configured")

	// ErrNoAPIKey is returned when a model is built without a key.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrAttemptTimeout is returned when one failover attempt runs past its
	// deadline.
	ErrAttemptTimeout = errors.New("inference: request timed out")
)

// APIError represents an error response from the generation API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Status is the API status string, e.g. RESOURCE_EXHAUSTED.
	Status string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("inference: API error %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("inference: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if the key was rejected (HTTP 400/401/403
// with an auth status).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403 || e.Status == "PERMISSION_DENIED" || e.Status == "UNAUTHENTICATED"
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// PoolError is returned when every key in a pool failed.
type PoolError struct {
	// Attempts is the number of keys tried.
	Attempts int

	// Errors holds each attempt's error in order.
	Errors []error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	if len(e.Errors) == 0 {
		return "inference pool: no errors recorded"
	}
	return fmt.Sprintf("inference pool: all %d keys failed, last error: %v",
		e.Attempts, e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last observed error.
func (e *PoolError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
