package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

// Response is the part of an HTTP response the fetcher cares about
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Transport performs a single GET without any retry or rate limiting.
// Close releases pooled connections at the end of a run; the transport stays usable afterwards.
type Transport interface {
	Get(ctx context.Context, pageURL string) (*Response, error)
	Close() error
}

// HTTPTransport is the net/http implementation of Transport.
// Every request carries the same fixed User-Agent header.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
}

// NewHTTPTransport wraps client, identifying every request as userAgent
func NewHTTPTransport(client *http.Client, userAgent string) *HTTPTransport {
	return &HTTPTransport{client: client, userAgent: userAgent}
}

// Get issues the request and reads the whole body.
// Non-2xx statuses are not errors here; they are returned for the caller to classify.
func (t *HTTPTransport) Get(ctx context.Context, pageURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, pageURL, err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, pageURL, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
	}, nil
}

// Close drops idle keep-alive connections
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
