// Package httptransport binds a transport.Server to HTTP.
//
// Each message is one POST to /messages with the encoded message as the body
// and the encoded answer as the response. Protocol failures travel as
// ErrorMessage bodies with status 200; non-2xx statuses mean the binding
// itself failed.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-feed-filter/internal/server"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

// MessagesPath is the route relative to the mount point.
const MessagesPath = "/messages"

// MaxMessageBytes caps request and response bodies.
const MaxMessageBytes = 1 << 20

const contentType = "application/json"

// Handler serves srv over HTTP.
func Handler(srv *transport.Server) http.Handler {
	r := chi.NewRouter()
	r.Post(MessagesPath, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageBytes))
		if err != nil {
			server.AddError(r.Context(), err)
			http.Error(w, "request body too large or unreadable", http.StatusRequestEntityTooLarge)
			return
		}

		out := srv.Serve(r.Context(), body)

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	})
	return r
}

// Client sends messages to a remote Handler. It implements ports.Transport.
type Client struct {
	url  string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient creates a client posting to baseURL + MessagesPath.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		url: baseURL + MessagesPath,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send implements ports.Transport. An empty answer body is reported as a
// nil answer.
func (c *Client) Send(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if id := requestIDOf(payload); id != "" {
		req.Header.Set(server.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, MaxMessageBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}
	return out, nil
}

func requestIDOf(payload []byte) string {
	var env struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.RequestID
}
