package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBody caps how much of a collaborator response is read
const maxResponseBody = 1 << 20

// Doer sends HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for a non-2xx response
type StatusError struct {
	Method     string
	URL        string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether the collaborator might succeed on a later call
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports a 404 response
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsServerFailure reports whether err means the collaborator itself is
// unhealthy: a transport error or a temporary status. Client errors (4xx)
// are answers, not failures.
func IsServerFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// JSONClient calls a JSON-over-HTTP collaborator rooted at a base URL
type JSONClient struct {
	doer    Doer
	headers map[string]string
	baseURL string
}

// NewJSONClient creates a client for baseURL
func NewJSONClient(baseURL string, doer Doer) *JSONClient {
	return &JSONClient{
		doer:    doer,
		headers: make(map[string]string),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// WithHeader adds a header sent on every request
func (c *JSONClient) WithHeader(key, value string) *JSONClient {
	c.headers[key] = value
	return c
}

// Do sends in as a JSON body (when non-nil) and decodes the response into out
// (when non-nil). Non-2xx responses return *StatusError.
func (c *JSONClient) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
