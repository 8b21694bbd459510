// Package document keeps the offscreen context alive.
//
// Coordinator.EnsureReady is the only way the background context brings the
// offscreen document up. Calls are serialized, so at most one creation is in
// flight, and a freshly created document gets its session initialized before
// any caller forwards work to it.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/syncx"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

// InitFunc initializes the session of a freshly created document.
type InitFunc func(ctx context.Context) error

// Options tunes the post-creation init loop.
type Options struct {
	// InitAttempts bounds the init loop; at least one attempt is made.
	InitAttempts int
	// SettleDelay is waited once before the first init attempt.
	SettleDelay time.Duration
	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

// DefaultOptions returns three attempts, a 100ms settle delay and a 500ms
// linear backoff.
func DefaultOptions() Options {
	return Options{
		InitAttempts: 3,
		SettleDelay:  100 * time.Millisecond,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Readiness reports what EnsureReady did.
type Readiness struct {
	// Created is true when this call created the document.
	Created bool
	// Initialized is true when the post-creation init succeeded. It is
	// false when nothing was created.
	Initialized bool
	// InitErr is the last init failure after a creation.
	InitErr error
}

type Coordinator struct {
	host   ports.DocumentHost
	init   InitFunc
	lock   *syncx.Lock
	opts   Options
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. init may be nil, which skips the
// post-creation init.
func NewCoordinator(host ports.DocumentHost, init InitFunc, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitAttempts < 1 {
		opts.InitAttempts = 1
	}
	return &Coordinator{
		host:   host,
		init:   init,
		lock:   syncx.NewLock(),
		opts:   opts,
		logger: opts.Logger,
	}
}

// EnsureReady makes sure the document exists. It returns an error only when
// the document could not be brought up; init failures are reported in the
// Readiness and logged.
func (c *Coordinator) EnsureReady(ctx context.Context) (Readiness, error) {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return Readiness{}, err
	}
	defer release()

	exists, err := c.host.Exists(ctx)
	if err != nil {
		return Readiness{}, fmt.Errorf("query document: %w", err)
	}
	if exists {
		return Readiness{}, nil
	}

	if err := c.host.Create(ctx); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return Readiness{}, fmt.Errorf("create document: %w", err)
		}
		// Someone else created it between our check and our create.
		exists, qerr := c.host.Exists(ctx)
		if qerr != nil {
			return Readiness{}, fmt.Errorf("query document: %w", qerr)
		}
		if !exists {
			return Readiness{}, fmt.Errorf("create document: %w", err)
		}
		c.logger.Debug("document created concurrently")
		return Readiness{}, nil
	}

	c.logger.Info("offscreen document created")
	r := Readiness{Created: true}
	if c.init == nil {
		r.Initialized = true
		return r, nil
	}

	r.InitErr = c.initialize(ctx)
	r.Initialized = r.InitErr == nil
	return r, nil
}

func (c *Coordinator) initialize(ctx context.Context) error {
	if err := sleep(ctx, c.opts.SettleDelay); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.InitAttempts; attempt++ {
		lastErr = c.init(ctx)
		if lastErr == nil {
			telemetry.DocumentInitAttempts.WithLabelValues("success").Inc()
			c.logger.Info("offscreen session initialized", slog.Int("attempt", attempt))
			return nil
		}
		telemetry.DocumentInitAttempts.WithLabelValues("failure").Inc()
		c.logger.Warn("offscreen session init failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.opts.InitAttempts),
			slog.String("error", lastErr.Error()))

		if attempt == c.opts.InitAttempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*c.opts.RetryBackoff); err != nil {
			return err
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
