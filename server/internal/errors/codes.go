package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for gateway operations.
type ErrorCode string

const (
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNetworkError indicates a connection could not be established.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"
	// ErrCodeTimeout indicates a provider deadline was exceeded.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeMalformedResponse indicates a provider body did not parse.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	// ErrCodeUpstreamError indicates a non-2xx provider status.
	ErrCodeUpstreamError ErrorCode = "UPSTREAM_ERROR"
	// ErrCodePersistenceError indicates a conversation store write failed.
	ErrCodePersistenceError ErrorCode = "PERSISTENCE_ERROR"
	// ErrCodeTotalFailure indicates both primary and fallback providers failed.
	ErrCodeTotalFailure ErrorCode = "TOTAL_FAILURE"
)

// GatewayError represents a structured error for gateway operations.
type GatewayError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *GatewayError) WithContext(key string, value interface{}) *GatewayError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new GatewayError.
func New(code ErrorCode, message string) *GatewayError {
	return &GatewayError{Code: code, Message: message}
}

// Wrap creates a new GatewayError wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *GatewayError {
	return &GatewayError{Code: code, Message: message, Cause: cause}
}
