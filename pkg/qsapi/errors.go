package qsapi

import (
	"errors"
	"fmt"
)

// RequestFailedError is returned when the manager rejects a request: the
// response envelope contains "success": false. The raw response is retained
// for inspection. These errors can be disabled per client with
// WithFailedRequestErrors(false), in which case the envelope is returned to
// the caller unchanged.
type RequestFailedError struct {
	Method   string
	Response map[string]any
}

func (e *RequestFailedError) Error() string {
	msg, _ := e.Response["msg"].(string)
	if msg == "" {
		msg = "(no error message)"
	}
	return fmt.Sprintf("request failed: %s", msg)
}

// RequestTimeoutError is returned when a request to the manager times out,
// either while sending or while waiting for the reply. Timeout errors are
// raised regardless of the WithFailedRequestErrors setting.
type RequestTimeoutError struct {
	Method string
	Err    error
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request timeout: method %q: %v", e.Method, e.Err)
}

func (e *RequestTimeoutError) Unwrap() error { return e.Err }

// ClientError is returned by the HTTP transport when the server responds
// with an error status code (>= 400).
type ClientError struct {
	StatusCode int
	Detail     string
	URL        string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%d: %s %s", e.StatusCode, e.Detail, e.URL)
}

// WaitTimeoutError is returned by wait operations when the condition is not
// satisfied within the allotted time.
type WaitTimeoutError struct {
	Timeout string
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timeout occurred while waiting for condition (%s)", e.Timeout)
}

// IsRequestFailed reports whether err is a RequestFailedError.
func IsRequestFailed(err error) bool {
	var e *RequestFailedError
	return errors.As(err, &e)
}

// IsRequestTimeout reports whether err is a RequestTimeoutError.
func IsRequestTimeout(err error) bool {
	var e *RequestTimeoutError
	return errors.As(err, &e)
}

// IsWaitTimeout reports whether err is a WaitTimeoutError.
func IsWaitTimeout(err error) bool {
	var e *WaitTimeoutError
	return errors.As(err, &e)
}
