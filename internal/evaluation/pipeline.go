// Package evaluation judges one feed item against the user's criteria.
//
// An item is evaluated in fixed stages: primary text, quoted text, quoted
// images and primary images. The first stage the model says to show wins;
// stages without content are skipped. Anything the pipeline cannot decide
// goes through FailOpen.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tiktoken-go/tokenizer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/deadline"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

// SessionSource hands out per-evaluation sessions.
type SessionSource interface {
	CreateClonedSession(ctx context.Context) (ports.Session, error)
	IsInitialized() bool
	IsMultimodalEnabled() bool
	FilterCriteria() string
}

// Options tunes a Pipeline.
type Options struct {
	PromptTimeout time.Duration
	FetchTimeout  time.Duration
	// MaxCandidateTokens truncates stage text before it is prompted. Zero disables truncation.
	MaxCandidateTokens int
	// FetchConcurrency bounds parallel image fetches per stage.
	FetchConcurrency int
	Logger           *slog.Logger
}

// DefaultOptions returns the production bounds.
func DefaultOptions() Options {
	return Options{
		PromptTimeout:      10 * time.Second,
		FetchTimeout:       5 * time.Second,
		MaxCandidateTokens: 1024,
		FetchConcurrency:   4,
	}
}

// Pipeline evaluates items. Evaluate is not safe for concurrent use on the
// same session source; callers serialize through the evaluation queue.
type Pipeline struct {
	sessions SessionSource
	fetcher  ports.ImageFetcher
	opts     Options
	codec    tokenizer.Codec
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. fetcher may be nil, in which case image
// stages never produce content.
func NewPipeline(sessions SessionSource, fetcher ports.ImageFetcher, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}

	p := &Pipeline{sessions: sessions, fetcher: fetcher, opts: opts, logger: logger}
	if opts.MaxCandidateTokens > 0 {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			logger.Warn("tokenizer unavailable, candidate text will not be truncated",
				slog.String("error", err.Error()))
		} else {
			p.codec = codec
		}
	}
	return p
}

type stage struct {
	name    string
	content func(ctx context.Context, s ports.Session) string
}

func (p *Pipeline) stages(item Item) []stage {
	var quotedMedia []string
	if item.Secondary != nil {
		quotedMedia = imageURLs(item.Secondary.Media)
	}
	primaryMedia := imageURLs(item.PrimaryMedia)

	return []stage{
		{name: "primary_text", content: func(context.Context, ports.Session) string {
			return strings.TrimSpace(item.PrimaryText)
		}},
		{name: "quoted_text", content: func(context.Context, ports.Session) string {
			return quoteStage(item.Secondary)
		}},
		{name: "quoted_images", content: func(ctx context.Context, s ports.Session) string {
			return imageStage("quoted tweet", p.describeImages(ctx, s, quotedMedia))
		}},
		{name: "primary_images", content: func(ctx context.Context, s ports.Session) string {
			return imageStage("this tweet", p.describeImages(ctx, s, primaryMedia))
		}},
	}
}

// Evaluate judges one item. It never fails: errors are folded into the
// result through FailOpen.
func (p *Pipeline) Evaluate(ctx context.Context, item Item) Result {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.Evaluate")
	defer span.End()

	res := p.evaluate(ctx, item)
	res.Elapsed = time.Since(start)

	outcome := "hide"
	switch {
	case deadline.IsTimeout(res.Err):
		outcome = "timeout"
		span.SetStatus(codes.Error, res.Err.Error())
	case res.Err != nil:
		outcome = "fail_open"
		span.SetStatus(codes.Error, res.Err.Error())
	case res.ShouldShow:
		outcome = "show"
	}
	span.SetAttributes(attribute.Bool("feedfilter.should_show", res.ShouldShow))
	telemetry.EvaluationOutcomes.WithLabelValues(outcome).Inc()
	telemetry.EvaluationLatency.Observe(res.Elapsed.Seconds())

	return res
}

func (p *Pipeline) evaluate(ctx context.Context, item Item) Result {
	if !p.sessions.IsInitialized() {
		return FailOpen(domain.ErrNotInitialized)
	}
	criteria := p.sessions.FilterCriteria()
	if strings.TrimSpace(criteria) == "" {
		p.logger.Debug("no filter criteria configured, showing item")
		return FailOpen(domain.ErrNoCriteria)
	}

	session, err := p.sessions.CreateClonedSession(ctx)
	if err != nil {
		return FailOpen(fmt.Errorf("acquire session: %w", err))
	}
	defer func() {
		if err := session.Destroy(context.WithoutCancel(ctx)); err != nil {
			p.logger.Debug("failed to destroy evaluation session", slog.String("error", err.Error()))
		}
	}()

	evaluated := false
	for _, st := range p.stages(item) {
		text := st.content(ctx, session)
		if text == "" {
			continue
		}
		evaluated = true

		show, err := p.evaluateText(ctx, session, criteria, text)
		if err != nil {
			p.logger.Warn("stage evaluation failed, showing item",
				slog.String("stage", st.name),
				slog.String("error", err.Error()))
			return FailOpen(err)
		}
		if show {
			return Result{ShouldShow: true}
		}
	}

	if !evaluated {
		p.logger.Warn("item had no content to evaluate, showing it")
		return FailOpen(nil)
	}
	return Result{ShouldShow: false}
}

var errUnparseable = errors.New("unparseable model response")

// evaluateText asks the model whether candidate matches criteria.
func (p *Pipeline) evaluateText(ctx context.Context, s ports.Session, criteria, candidate string) (bool, error) {
	prompt := TextPrompt(criteria, p.truncate(candidate))
	telemetry.ModelCalls.WithLabelValues("text").Inc()

	response, err := deadline.Run(ctx, p.opts.PromptTimeout, "prompt", func(ctx context.Context) (string, error) {
		return s.Prompt(ctx, []ports.PromptPart{ports.TextPart(prompt)})
	})
	if err != nil {
		return true, err
	}

	show, ok := ParseShowDecision(response)
	if !ok {
		return true, fmt.Errorf("%w: %.80q", errUnparseable, response)
	}
	return show, nil
}

// describeImages fetches the images concurrently and describes each fetched
// one in input order. Failed fetches and empty descriptions are skipped.
func (p *Pipeline) describeImages(ctx context.Context, s ports.Session, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	if !p.sessions.IsMultimodalEnabled() {
		p.logger.Debug("session is text-only, skipping images", slog.Int("count", len(urls)))
		return nil
	}
	if p.fetcher == nil {
		return nil
	}

	images := make([][]byte, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FetchConcurrency)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			b, err := deadline.Run(gctx, p.opts.FetchTimeout, "image fetch", func(ctx context.Context) ([]byte, error) {
				return p.fetcher.Fetch(ctx, url)
			})
			if err != nil {
				p.logger.Debug("skipping image", slog.String("url", url), slog.String("error", err.Error()))
				return nil
			}
			images[i] = b
			return nil
		})
	}
	_ = g.Wait()

	var descriptions []string
	for _, img := range images {
		if img == nil {
			continue
		}
		telemetry.ModelCalls.WithLabelValues("image").Inc()
		desc, err := deadline.Run(ctx, p.opts.PromptTimeout, "describe image", func(ctx context.Context) (string, error) {
			return s.Prompt(ctx, []ports.PromptPart{ports.TextPart(DescribeImagePrompt), ports.ImagePart(img)})
		})
		if err != nil {
			p.logger.Debug("image description failed", slog.String("error", err.Error()))
			continue
		}
		if desc = strings.TrimSpace(desc); desc != "" {
			descriptions = append(descriptions, desc)
		}
	}
	return descriptions
}

// truncate keeps candidate within the token budget.
func (p *Pipeline) truncate(candidate string) string {
	if p.codec == nil {
		return candidate
	}
	ids, _, err := p.codec.Encode(candidate)
	if err != nil || len(ids) <= p.opts.MaxCandidateTokens {
		return candidate
	}
	truncated, err := p.codec.Decode(ids[:p.opts.MaxCandidateTokens])
	if err != nil {
		return candidate
	}
	return truncated + "…"
}
