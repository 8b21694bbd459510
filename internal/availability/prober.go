// Package availability asks the inference host whether a capability set can
// be served.
package availability

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
)

// Prober wraps a host's availability query.
type Prober struct {
	model  ports.LanguageModel
	logger *slog.Logger
}

// NewProber creates a prober. A nil model means the host has no inference
// capability at all.
func NewProber(model ports.LanguageModel, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{model: model, logger: logger}
}

// Check reports availability for the capability set and output language.
// It never fails: an absent capability API or a failing query reads as
// Unavailable, and unrecognized tokens are preserved as Unknown.
func (p *Prober) Check(ctx context.Context, caps domain.CapabilitySet, lang domain.OutputLanguage) domain.Availability {
	if p.model == nil {
		return domain.Unavailable
	}

	token, err := p.model.Availability(ctx, ports.SessionOptions{
		Capabilities:   caps,
		OutputLanguage: lang,
	})
	if err != nil {
		p.logger.Warn("availability query failed",
			slog.Bool("multimodal", caps.Multimodal()),
			slog.String("error", err.Error()))
		return domain.Unavailable
	}

	a := domain.ParseAvailability(token)
	if a.IsUnknown() {
		p.logger.Warn("unrecognized availability token", slog.String("token", a.Token))
	}
	return a
}
