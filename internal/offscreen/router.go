// Package offscreen is the router of the inference-hosting context.
//
// It owns the session manager, the evaluation queue and the pipeline, and
// serves init, reinit, evaluate and status requests from the background
// context.
package offscreen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/evaluation"
	"github.com/tjfontaine/polyglot-feed-filter/internal/queue"
	"github.com/tjfontaine/polyglot-feed-filter/internal/session"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

// Router serves the offscreen context.
type Router struct {
	sessions *session.Manager
	queue    *queue.Queue[evaluation.Result]
	pipeline *evaluation.Pipeline
	logger   *slog.Logger
}

// NewRouter wires a router over the host's model and image fetcher.
func NewRouter(model ports.LanguageModel, fetcher ports.ImageFetcher, opts evaluation.Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With(slog.String("context", "offscreen"))
	opts.Logger = logger

	sessions := session.NewManager(model, logger)
	return &Router{
		sessions: sessions,
		queue:    queue.New[evaluation.Result](),
		pipeline: evaluation.NewPipeline(sessions, fetcher, opts),
		logger:   logger,
	}
}

// Server returns a transport server dispatching to the router.
func (r *Router) Server() *transport.Server {
	s := transport.NewServer("offscreen", r.logger)
	s.Handle(domain.MessageTypeInitRequest, r.handleInit)
	s.Handle(domain.MessageTypeReinitRequest, r.handleReinit)
	s.Handle(domain.MessageTypeEvaluateRequest, r.handleEvaluate)
	s.Handle(domain.MessageTypeSessionStatusRequest, r.handleStatus)
	return s
}

// Close drops queued work and destroys the base session.
func (r *Router) Close(ctx context.Context) error {
	r.queue.Clear()
	return r.sessions.Destroy(ctx)
}

func (r *Router) handleInit(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.InitRequest)
	return r.initialize(ctx, req.Config), nil
}

func (r *Router) handleReinit(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.ReinitRequest)
	dropped := r.queue.Pending()
	r.queue.Clear()
	r.logger.Info("reinitializing session",
		slog.Int("dropped", dropped),
		slog.String("output_language", string(req.Config.OutputLanguage)))
	return r.initialize(ctx, req.Config), nil
}

func (r *Router) initialize(ctx context.Context, cfg domain.SessionConfig) *domain.InitResponse {
	_, err := r.sessions.Initialize(ctx, cfg)
	resp := &domain.InitResponse{
		Success:       err == nil,
		SessionStatus: r.sessions.Status(),
	}
	if err != nil {
		r.logger.Warn("session initialization failed", slog.String("error", err.Error()))
		resp.Error = domain.StringPtr(err.Error())
	}
	return resp
}

func (r *Router) handleEvaluate(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := msg.(*domain.EvaluateRequest)
	item := evaluation.ItemFromRequest(req)
	start := time.Now()

	result, err := r.queue.Enqueue(ctx, func(ctx context.Context) (evaluation.Result, error) {
		return r.pipeline.Evaluate(ctx, item), nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrDroppedByClear) {
			r.logger.Warn("evaluation did not run",
				slog.String("tweet_id", req.TweetID),
				slog.String("error", err.Error()))
		}
		result = evaluation.FailOpen(err)
		result.Elapsed = time.Since(start)
	}

	return &domain.EvaluateResponse{
		TweetID:        req.TweetID,
		ShouldShow:     result.ShouldShow,
		CacheHit:       false,
		EvaluationTime: result.ElapsedMillis(),
		Error:          result.ErrorText(),
	}, nil
}

func (r *Router) handleStatus(ctx context.Context, _ domain.Message) (domain.Message, error) {
	return statusResponse(r.sessions), nil
}

func statusResponse(s ports.StatusReporter) *domain.SessionStatusResponse {
	resp := &domain.SessionStatusResponse{
		Initialized:  s.IsInitialized(),
		IsMultimodal: s.IsMultimodalEnabled(),
	}
	if cfg, ok := s.CurrentConfig(); ok {
		resp.CurrentConfig = &cfg
	}
	return resp
}
