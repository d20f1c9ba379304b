package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"event-dispatcher/internal/core/ports"
)

// maxResponseBody caps how much of a target's response is kept.
const maxResponseBody = 64 << 10

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport implements ports.Transport over net/http. The per-call
// timeout comes from the request context.
type HTTPTransport struct {
	client HTTPClient
}

func NewHTTPTransport(client HTTPClient) *HTTPTransport {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	return &HTTPTransport{client: client}
}

// NewHTTPClient returns a client with pooled keep-alive connections. timeout
// bounds the whole exchange as a backstop to the context deadline.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Send performs the call. A non-2xx status is returned as *ports.TransportError.
func (t *HTTPTransport) Send(ctx context.Context, r ports.TransportRequest) (*ports.TransportResponse, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ports.TransportError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return &ports.TransportResponse{StatusCode: resp.StatusCode, Body: data}, nil
}
