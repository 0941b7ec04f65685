package transport

import (
	"errors"
	"fmt"
)

// Common errors returned by the transport.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted
	// and the last response was a server error.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUnreachable is returned when all retry attempts are exhausted
	// without ever obtaining an HTTP response (DNS failure, timeout,
	// connection refused).
	ErrUnreachable = errors.New("registry unreachable")

	// ErrCancelled is returned when the context is cancelled before or
	// during a request. It marks a clean stop, not a failure.
	ErrCancelled = errors.New("request cancelled")
)

// ErrorClass represents a classification of request outcomes.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connectivity errors with no HTTP response.
	ErrorClassNetwork ErrorClass = "network"
)

// StatusError is a typed registry API error carrying the HTTP status code.
type StatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("registry error (status %d): %s", e.StatusCode, e.Status)
}

// Class returns the error class for the status code.
func (e *StatusError) Class() ErrorClass {
	if e.StatusCode >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// shouldRetry determines if an outcome should be retried based on its class.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx errors are the caller's fault and never transient.
		return false
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
