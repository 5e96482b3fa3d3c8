package qsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultHTTPServerURI is the default URI of the bluesky HTTP server.
	DefaultHTTPServerURI = "http://localhost:60610"

	// DefaultHTTPTimeout is the default per-request timeout for the HTTP transport.
	DefaultHTTPTimeout = 5 * time.Second
)

// HTTPTransport communicates with the manager through the REST API of the
// bluesky HTTP server. Manager methods are translated to REST endpoints via
// restMethodMap; parameters travel as a JSON body for both GET and POST,
// which is what the HTTP server accepts.
//
// Transient network failures are retried with exponential backoff and
// jitter. HTTP error statuses are not retried: they indicate a rejected
// request, not a flaky connection.
type HTTPTransport struct {
	baseURI    string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewHTTPTransport creates an HTTP transport for the given server URI.
// If uri is empty, DefaultHTTPServerURI is used.
func NewHTTPTransport(uri string, timeout time.Duration) *HTTPTransport {
	if uri == "" {
		uri = DefaultHTTPServerURI
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	return &HTTPTransport{
		baseURI:    uri,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 2,
		backoff:    100 * time.Millisecond,
	}
}

// Protocol reports ProtocolHTTP.
func (t *HTTPTransport) Protocol() Protocol { return ProtocolHTTP }

// PassUserInfo reports false: the HTTP server assigns user name and group
// from login information, so they must not be sent in request bodies.
func (t *HTTPTransport) PassUserInfo() bool { return false }

// BaseURI returns the server URI the transport sends requests to.
func (t *HTTPTransport) BaseURI() string { return t.baseURI }

// Send performs one request against the REST endpoint mapped to method.
func (t *HTTPTransport) Send(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	ep, ok := restMethodMap[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", method)
	}

	var payload []byte
	if len(params) > 0 {
		var err error
		payload, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize request parameters: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := t.doRequest(ctx, ep, payload)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt >= t.maxRetries {
			break
		}

		delay := t.backoff << attempt
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var netErr net.Error
	if errors.As(lastErr, &netErr) && netErr.Timeout() {
		return nil, &RequestTimeoutError{Method: method, Err: lastErr}
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &RequestTimeoutError{Method: method, Err: lastErr}
	}
	return nil, lastErr
}

func (t *HTTPTransport) doRequest(ctx context.Context, ep restEndpoint, payload []byte) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	url := t.baseURI + ep.path
	req, err := http.NewRequestWithContext(ctx, ep.verb, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &ClientError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(data),
			URL:        url,
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return decoded, nil
}

// errorDetail extracts the "detail" field the HTTP server attaches to error
// responses. Falls back to the raw body.
func errorDetail(data []byte) string {
	var decoded struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Detail != "" {
		return decoded.Detail
	}
	return string(data)
}

// isRetryable reports whether the request may be retried. Only transport
// level failures qualify; a ClientError means the server saw the request.
func isRetryable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Close releases idle connections held by the underlying HTTP client.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
