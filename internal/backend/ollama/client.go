// Package ollama implements the inference host over a local Ollama server.
//
// The text-only capability set maps to the configured text model and the
// multimodal set to the vision model. Availability is read from the list of
// pulled models: listed means available, a reachable server without the
// model means downloadable, an unreachable server means unavailable.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultTextModel   = "llama3.2"
	DefaultVisionModel = "llava"
)

// Availability tokens as the session manager reads them.
const (
	tokenAvailable    = "available"
	tokenDownloadable = "downloadable"
	tokenUnavailable  = "unavailable"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the server address.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModels sets the text and vision models. An empty vision model
// disables the multimodal tier.
func WithModels(text, vision string) ClientOption {
	return func(c *Client) {
		c.textModel = text
		c.visionModel = vision
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is the Ollama language model.
type Client struct {
	baseURL     string
	textModel   string
	visionModel string
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.LanguageModel = (*Client)(nil)

// NewClient creates a client with the default server and models.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		textModel:   DefaultTextModel,
		visionModel: DefaultVisionModel,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   5 * time.Minute,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) modelFor(opts ports.SessionOptions) string {
	if opts.Capabilities.Multimodal() {
		return c.visionModel
	}
	return c.textModel
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Availability implements ports.LanguageModel.
func (c *Client) Availability(ctx context.Context, opts ports.SessionOptions) (string, error) {
	model := c.modelFor(opts)
	if model == "" {
		return tokenUnavailable, nil
	}

	var tags tagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		c.logger.Debug("ollama unreachable", slog.String("error", err.Error()))
		return tokenUnavailable, nil
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, model) || sameModel(m.Model, model) {
			return tokenAvailable, nil
		}
	}
	return tokenDownloadable, nil
}

// sameModel matches "llava" against "llava:latest" and exact tags.
func sameModel(listed, wanted string) bool {
	if listed == "" {
		return false
	}
	if listed == wanted {
		return true
	}
	if !strings.Contains(wanted, ":") {
		return strings.HasPrefix(listed, wanted+":")
	}
	return false
}

// Create implements ports.LanguageModel. The model must be pulled.
func (c *Client) Create(ctx context.Context, opts ports.SessionOptions) (ports.Session, error) {
	model := c.modelFor(opts)
	if model == "" {
		return nil, fmt.Errorf("no model configured for %v input", opts.Capabilities.Inputs)
	}

	if err := c.do(ctx, http.MethodPost, "/api/show", map[string]string{"model": model}, nil); err != nil {
		return nil, fmt.Errorf("model %q not usable: %w", model, err)
	}

	var history []chatMessage
	if opts.SystemPrompt != "" {
		history = append(history, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	c.logger.Debug("ollama session created", slog.String("model", model))
	return &Session{client: c, model: model, history: history}, nil
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  [][]byte `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (c *Client) chat(ctx context.Context, model string, messages []chatMessage) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ollama.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	req := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": 0},
	}
	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return resp.Message.Content, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// do sends body as JSON and decodes a 200 answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
