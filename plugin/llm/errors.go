package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Provider failures fall into four recoverable classes. The gateway treats
// every one of them as a signal to try the fallback provider; the class is
// kept so callers can log and report what actually went wrong.

// TransportError reports a connection-level failure: the provider could not
// be reached at all, or the connection was rejected before a response.
type TransportError struct {
	Endpoint string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure reaching %s: %v", e.Endpoint, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError reports that a provider did not answer within the request
// deadline.
type TimeoutError struct {
	Endpoint string
	Cause    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out: %v", e.Endpoint, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// UpstreamError reports a non-2xx status from a provider. Body carries the
// (truncated) response payload for diagnostics.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// MalformedResponseError reports a 2xx response whose body could not be
// decoded. Raw carries the undecodable payload for diagnosis.
type MalformedResponseError struct {
	Endpoint string
	Raw      string
	Cause    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// classifyRequestError maps an http.Client error to the transport/timeout
// taxonomy. Deadline and cancellation failures become TimeoutError, anything
// else connection-level becomes TransportError.
func classifyRequestError(endpoint string, err error) error {
	if isTimeoutError(err) {
		return &TimeoutError{Endpoint: endpoint, Cause: err}
	}
	return &TransportError{Endpoint: endpoint, Cause: err}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

// isConnectionRefused reports whether the failure is an actively refused
// connection rather than an unreachable network. The diagnostics probe uses
// it to separate "provider down" from "no internet".
func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}
