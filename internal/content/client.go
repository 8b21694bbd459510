// Package content is the capture surface's view of the filter: typed calls
// into the background router.
package content

import (
	"context"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

// Timeouts bounds each call.
type Timeouts struct {
	Evaluate      time.Duration
	CheckCache    time.Duration
	SessionStatus time.Duration
	Reinit        time.Duration
}

// DefaultTimeouts returns 30s for evaluate and reinit, 15s otherwise.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Evaluate:      30 * time.Second,
		CheckCache:    15 * time.Second,
		SessionStatus: 15 * time.Second,
		Reinit:        30 * time.Second,
	}
}

// Tweet is one extracted feed item.
type Tweet struct {
	ID          string
	Text        string
	Media       []domain.MediaItem
	QuotedTweet *domain.QuotedTweet
}

type Client struct {
	rpc      *transport.Client
	timeouts Timeouts
}

// NewClient creates a client sending to the background router over t.
func NewClient(t ports.Transport, timeouts Timeouts, logger *slog.Logger) *Client {
	return &Client{rpc: transport.NewClient(t, logger), timeouts: timeouts}
}

// Evaluate asks for a verdict on one item.
func (c *Client) Evaluate(ctx context.Context, tweet Tweet) (*domain.EvaluateResponse, error) {
	return transport.Call[*domain.EvaluateResponse](ctx, c.rpc, &domain.EvaluateRequest{
		TweetID:     tweet.ID,
		TextContent: tweet.Text,
		Media:       tweet.Media,
		QuotedTweet: tweet.QuotedTweet,
	}, c.timeouts.Evaluate)
}

// CheckCache returns the cached verdicts among ids. Uncached ids are absent.
func (c *Client) CheckCache(ctx context.Context, ids []string) (map[string]bool, error) {
	resp, err := transport.Call[*domain.CacheCheckResponse](ctx, c.rpc, &domain.CacheCheckRequest{TweetIDs: ids}, c.timeouts.CheckCache)
	if err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return map[string]bool{}, nil
	}
	return resp.Results, nil
}

// SessionStatus reports the offscreen session state.
func (c *Client) SessionStatus(ctx context.Context) (*domain.SessionStatusResponse, error) {
	return transport.Call[*domain.SessionStatusResponse](ctx, c.rpc, &domain.SessionStatusRequest{}, c.timeouts.SessionStatus)
}

// Reinit replaces the session configuration and clears cached verdicts.
func (c *Client) Reinit(ctx context.Context, cfg domain.SessionConfig) (*domain.InitResponse, error) {
	return transport.Call[*domain.InitResponse](ctx, c.rpc, &domain.ReinitRequest{Config: cfg}, c.timeouts.Reinit)
}

// ShouldShow evaluates tweet and folds every failure into showing it.
func (c *Client) ShouldShow(ctx context.Context, tweet Tweet) bool {
	resp, err := c.Evaluate(ctx, tweet)
	if err != nil {
		return true
	}
	return resp.ShouldShow
}
