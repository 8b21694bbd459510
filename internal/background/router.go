// Package background is the central router.
//
// It answers the capture surface from the evaluation cache, brings the
// offscreen document up on demand, forwards misses to it and writes
// conclusive verdicts back. It also reacts to settings changes by clearing
// the cache and reinitializing the offscreen session.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tjfontaine/polyglot-feed-filter/internal/cache"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/document"
	"github.com/tjfontaine/polyglot-feed-filter/internal/evaluation"
	"github.com/tjfontaine/polyglot-feed-filter/internal/settings"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

// Options bounds the requests the router sends to the offscreen context.
type Options struct {
	EvaluateTimeout time.Duration
	ControlTimeout  time.Duration
	InitTimeout     time.Duration
	Document        document.Options
	Logger          *slog.Logger
}

// DefaultOptions returns the production bounds.
func DefaultOptions() Options {
	return Options{
		EvaluateTimeout: 30 * time.Second,
		ControlTimeout:  15 * time.Second,
		InitTimeout:     30 * time.Second,
		Document:        document.DefaultOptions(),
	}
}

// Router serves the background context.
type Router struct {
	cache     *cache.Manager
	settings  *settings.Store
	offscreen *transport.Client
	document  *document.Coordinator
	opts      Options
	logger    *slog.Logger

	loads singleflight.Group

	// applied is a config a ReinitRequest already pushed to the offscreen
	// context; the watcher skips the matching settings change.
	appliedMu sync.Mutex
	applied   *domain.SessionConfig

	watchMu     sync.Mutex
	unsubscribe func()
	pending     *settingsUpdate
	wake        chan struct{}
	watchDone   chan struct{}
}

type settingsUpdate struct {
	before, after domain.Settings
}

// NewRouter wires the router. host creates the offscreen document and
// offscreen sends to it.
func NewRouter(c *cache.Manager, s *settings.Store, offscreen *transport.Client, host ports.DocumentHost, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With(slog.String("context", "background"))

	r := &Router{
		cache:     c,
		settings:  s,
		offscreen: offscreen,
		opts:      opts,
		logger:    logger,
	}

	docOpts := opts.Document
	docOpts.Logger = logger
	r.document = document.NewCoordinator(host, r.initOffscreen, docOpts)
	return r
}

// Server returns a transport server dispatching to the router.
func (r *Router) Server() *transport.Server {
	s := transport.NewServer("background", r.logger)
	s.Handle(domain.MessageTypeEvaluateRequest, r.handleEvaluate)
	s.Handle(domain.MessageTypeCacheCheckRequest, r.handleCacheCheck)
	s.Handle(domain.MessageTypeSessionStatusRequest, r.handleStatus)
	s.Handle(domain.MessageTypeInitRequest, r.handleInit)
	s.Handle(domain.MessageTypeReinitRequest, r.handleReinit)
	return s
}

// loadSettings collapses concurrent reads of the settings record.
func (r *Router) loadSettings(ctx context.Context) (domain.Settings, error) {
	v, err, _ := r.loads.Do(settings.Key, func() (any, error) {
		return r.settings.Read(ctx)
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return v.(domain.Settings), nil
}

func (r *Router) handleEvaluate(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.EvaluateRequest)

	current, err := r.loadSettings(ctx)
	if err != nil {
		r.logger.Warn("settings unreadable, showing item",
			slog.String("tweet_id", req.TweetID),
			slog.String("error", err.Error()))
		res := evaluation.FailOpen(err)
		return &domain.EvaluateResponse{TweetID: req.TweetID, ShouldShow: res.ShouldShow, Error: res.ErrorText()}, nil
	}
	if !current.Enabled {
		return &domain.EvaluateResponse{TweetID: req.TweetID, ShouldShow: true}, nil
	}

	if show, ok := r.cache.Get(ctx, req.TweetID); ok {
		return &domain.EvaluateResponse{
			TweetID:        req.TweetID,
			ShouldShow:     show,
			CacheHit:       true,
			EvaluationTime: 0,
		}, nil
	}

	ready, err := r.document.EnsureReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("offscreen document unavailable: %w", err)
	}
	if !ready.Created {
		if err := r.sendInit(ctx, current.SessionConfig()); err != nil {
			r.logger.Warn("init handshake failed, forwarding anyway",
				slog.String("tweet_id", req.TweetID),
				slog.String("error", err.Error()))
		}
	}

	forward := &domain.EvaluateRequest{
		TweetID:     req.TweetID,
		TextContent: req.TextContent,
		Media:       req.Media,
		QuotedTweet: req.QuotedTweet,
	}
	resp, err := transport.Call[*domain.EvaluateResponse](ctx, r.offscreen, forward, r.opts.EvaluateTimeout)
	if err != nil {
		return nil, err
	}

	if resp.Error == nil {
		if err := r.cache.Set(ctx, req.TweetID, resp.ShouldShow); err != nil {
			r.logger.Warn("failed to cache verdict",
				slog.String("tweet_id", req.TweetID),
				slog.String("error", err.Error()))
		}
	}

	return &domain.EvaluateResponse{
		TweetID:        req.TweetID,
		ShouldShow:     resp.ShouldShow,
		CacheHit:       false,
		EvaluationTime: resp.EvaluationTime,
		Error:          resp.Error,
	}, nil
}

func (r *Router) handleCacheCheck(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.CacheCheckRequest)
	return &domain.CacheCheckResponse{Results: r.cache.GetBatch(ctx, req.TweetIDs)}, nil
}

func (r *Router) handleStatus(ctx context.Context, _ domain.Message) (domain.Message, error) {
	if _, err := r.document.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("offscreen document unavailable: %w", err)
	}
	return transport.Call[*domain.SessionStatusResponse](ctx, r.offscreen, &domain.SessionStatusRequest{}, r.opts.ControlTimeout)
}

func (r *Router) handleInit(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.InitRequest)
	if _, err := r.document.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("offscreen document unavailable: %w", err)
	}
	return transport.Call[*domain.InitResponse](ctx, r.offscreen, &domain.InitRequest{Config: req.Config}, r.opts.InitTimeout)
}

// handleReinit stores the new config in the settings record, so later init
// handshakes send it too, then clears the cache and reinitializes.
func (r *Router) handleReinit(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.ReinitRequest)

	current, err := r.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	next := current
	next.Prompt = req.Config.Prompt
	next.OutputLanguage = req.Config.OutputLanguage

	if !next.SessionConfig().Equal(current.SessionConfig()) {
		r.setApplied(next.SessionConfig())
		if err := r.settings.Save(ctx, next); err != nil {
			r.takeApplied(next.SessionConfig())
			return nil, fmt.Errorf("save reinit config: %w", err)
		}
	}

	if err := r.cache.Clear(ctx); err != nil {
		r.logger.Warn("failed to clear cache before reinit", slog.String("error", err.Error()))
	}
	return r.reinit(ctx, next.SessionConfig())
}

func (r *Router) setApplied(cfg domain.SessionConfig) {
	r.appliedMu.Lock()
	defer r.appliedMu.Unlock()
	r.applied = &cfg
}

// takeApplied reports whether cfg was already applied by a ReinitRequest.
// The record is forgotten either way.
func (r *Router) takeApplied(cfg domain.SessionConfig) bool {
	r.appliedMu.Lock()
	defer r.appliedMu.Unlock()
	applied := r.applied
	r.applied = nil
	return applied != nil && applied.Equal(cfg)
}

func (r *Router) reinit(ctx context.Context, cfg domain.SessionConfig) (*domain.InitResponse, error) {
	if _, err := r.document.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("offscreen document unavailable: %w", err)
	}
	return transport.Call[*domain.InitResponse](ctx, r.offscreen, &domain.ReinitRequest{Config: cfg}, r.opts.InitTimeout)
}

// initOffscreen is the coordinator's post-creation init.
func (r *Router) initOffscreen(ctx context.Context) error {
	current, err := r.loadSettings(ctx)
	if err != nil {
		return err
	}
	return r.sendInit(ctx, current.SessionConfig())
}

func (r *Router) sendInit(ctx context.Context, cfg domain.SessionConfig) error {
	resp, err := transport.Call[*domain.InitResponse](ctx, r.offscreen, &domain.InitRequest{Config: cfg}, r.opts.InitTimeout)
	if err != nil {
		return err
	}
	if !resp.Success {
		text := "initialization failed"
		if resp.Error != nil {
			text = *resp.Error
		}
		return errors.New(text)
	}
	return nil
}

// WatchSettings reacts to changes of the settings record in kv until Close.
// Changes that arrive while a reaction runs are merged into one.
func (r *Router) WatchSettings(kv ports.KVStore) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	if r.unsubscribe != nil {
		return
	}

	r.wake = make(chan struct{}, 1)
	r.watchDone = make(chan struct{})
	r.unsubscribe = kv.Subscribe(func(changes map[string]ports.Change) {
		before, after, ok := settings.Changed(changes)
		if !ok {
			return
		}
		r.watchMu.Lock()
		defer r.watchMu.Unlock()
		if r.wake == nil {
			return
		}
		if r.pending != nil {
			r.pending.after = after
		} else {
			r.pending = &settingsUpdate{before: before, after: after}
		}
		select {
		case r.wake <- struct{}{}:
		default:
		}
	})
	go r.applySettings(r.wake, r.watchDone)
}

func (r *Router) applySettings(wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for range wake {
		r.watchMu.Lock()
		u := r.pending
		r.pending = nil
		r.watchMu.Unlock()
		if u != nil {
			r.settingsChanged(context.Background(), u.before, u.after)
		}
	}
}

func (r *Router) settingsChanged(ctx context.Context, before, after domain.Settings) {
	configChanged := !before.SessionConfig().Equal(after.SessionConfig())
	disabled := before.Enabled && !after.Enabled
	if configChanged && r.takeApplied(after.SessionConfig()) {
		configChanged = false
	}

	if configChanged || disabled {
		if err := r.cache.Clear(ctx); err != nil {
			r.logger.Warn("failed to clear cache after settings change", slog.String("error", err.Error()))
		} else {
			r.logger.Info("cache cleared after settings change",
				slog.Bool("config_changed", configChanged),
				slog.Bool("disabled", disabled))
		}
	}

	if !after.Enabled || !configChanged {
		return
	}
	resp, err := r.reinit(ctx, after.SessionConfig())
	switch {
	case err != nil:
		r.logger.Warn("reinit after settings change failed", slog.String("error", err.Error()))
	case !resp.Success:
		r.logger.Warn("offscreen rejected new settings", slog.Any("error", resp.Error))
	default:
		telemetry.SessionInits.WithLabelValues("reinit").Inc()
		r.logger.Info("offscreen session reinitialized",
			slog.String("output_language", string(after.OutputLanguage)))
	}
}

// Close stops the settings watcher and waits for pending reactions.
func (r *Router) Close() {
	r.watchMu.Lock()
	unsubscribe, wake, done := r.unsubscribe, r.wake, r.watchDone
	r.unsubscribe, r.wake, r.watchDone = nil, nil, nil
	r.watchMu.Unlock()

	if unsubscribe == nil {
		return
	}
	unsubscribe()
	close(wake)
	<-done
}
