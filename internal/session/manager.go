// Package session owns the single base inference session of the offscreen
// context.
//
// The base session never leaves this package: callers get clones through
// CreateClonedSession. Initialize, Destroy and CreateClonedSession are
// serialized by one lock; the accessors read an atomically published
// snapshot and never block.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-feed-filter/internal/availability"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/syncx"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

// runtimeState is the Initialized state. A nil pointer is Uninitialized.
type runtimeState struct {
	session ports.Session
	config  domain.SessionConfig
	level   domain.CapabilityLevel
}

// Manager is the session lifecycle manager.
type Manager struct {
	model    ports.LanguageModel
	prober   *availability.Prober
	initLock *syncx.Lock
	state    atomic.Pointer[runtimeState]
	logger   *slog.Logger
}

var _ ports.StatusReporter = (*Manager)(nil)

// NewManager creates a manager over the host's model. model may be nil when
// the host has no inference capability.
func NewManager(model ports.LanguageModel, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		model:    model,
		prober:   availability.NewProber(model, logger),
		initLock: syncx.NewLock(),
		logger:   logger,
	}
}

// Initialize makes sure a base session exists for cfg and reports its
// capability level.
//
// An initialized manager with a structurally equal config returns at once.
// Otherwise a multimodal session is tried first when the host offers one,
// then a text-only session. A new session is committed before the previous
// one is destroyed, and a failed attempt leaves the previous session and
// config in place. Failures match domain.ErrTextModelUnavailable or
// domain.ErrTextSessionCreateFailed.
func (m *Manager) Initialize(ctx context.Context, cfg domain.SessionConfig) (domain.CapabilityLevel, error) {
	release, err := m.initLock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire init lock: %w", err)
	}
	defer release()

	if cur := m.state.Load(); cur != nil && cur.config.Equal(cfg) {
		telemetry.SessionInits.WithLabelValues("reused").Inc()
		return cur.level, nil
	}

	multi := m.prober.Check(ctx, domain.MultimodalCapabilities, cfg.OutputLanguage)
	if multi == domain.Available || multi == domain.AfterDownload {
		s, err := m.model.Create(ctx, sessionOptions(domain.MultimodalCapabilities, cfg))
		if err == nil {
			m.commit(ctx, s, cfg, domain.CapabilityMultimodal)
			return domain.CapabilityMultimodal, nil
		}
		m.logger.Warn("multimodal session creation failed, falling back to text-only",
			slog.String("error", err.Error()))
	} else {
		m.logger.Debug("multimodal capability not usable", slog.String("availability", multi.String()))
	}

	text := m.prober.Check(ctx, domain.TextCapabilities, cfg.OutputLanguage)
	if text == domain.Unavailable || text == domain.Downloading {
		telemetry.SessionInits.WithLabelValues("failed").Inc()
		return 0, domain.NewError(domain.ErrorTypeCapabilityUnavailable,
			fmt.Sprintf("text model is %s", text)).WithCode(domain.ErrorCodeTextModelUnavailable)
	}

	s, err := m.model.Create(ctx, sessionOptions(domain.TextCapabilities, cfg))
	if err != nil {
		telemetry.SessionInits.WithLabelValues("failed").Inc()
		return 0, domain.NewError(domain.ErrorTypeSessionCreateFailed,
			fmt.Sprintf("create text session: %v", err)).
			WithCode(domain.ErrorCodeTextSessionCreateFailed).
			WithCause(err)
	}
	m.commit(ctx, s, cfg, domain.CapabilityTextOnly)
	return domain.CapabilityTextOnly, nil
}

// commit publishes the new state, then tears down the one it replaced.
// Caller holds initLock.
func (m *Manager) commit(ctx context.Context, s ports.Session, cfg domain.SessionConfig, level domain.CapabilityLevel) {
	old := m.state.Swap(&runtimeState{session: s, config: cfg, level: level})
	telemetry.SessionInits.WithLabelValues(level.String()).Inc()
	m.logger.Info("session initialized",
		slog.String("session_type", level.String()),
		slog.String("output_language", string(cfg.OutputLanguage)))

	if old != nil {
		m.destroySession(ctx, old.session)
	}
}

func (m *Manager) destroySession(ctx context.Context, s ports.Session) {
	if err := s.Destroy(ctx); err != nil {
		m.logger.Warn("failed to destroy session", slog.String("error", err.Error()))
	}
}

// CreateClonedSession clones the base session. The caller owns the clone and
// must destroy it.
func (m *Manager) CreateClonedSession(ctx context.Context) (ports.Session, error) {
	release, err := m.initLock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire init lock: %w", err)
	}
	defer release()

	cur := m.state.Load()
	if cur == nil {
		return nil, domain.ErrNotInitialized
	}

	clone, err := cur.session.Clone(ctx)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	return clone, nil
}

// Destroy tears down the base session. Host errors are logged and the
// manager always ends up uninitialized.
func (m *Manager) Destroy(ctx context.Context) error {
	release, err := m.initLock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire init lock: %w", err)
	}
	defer release()

	if old := m.state.Swap(nil); old != nil {
		m.destroySession(ctx, old.session)
	}
	return nil
}

// IsInitialized reports whether a base session exists.
func (m *Manager) IsInitialized() bool {
	return m.state.Load() != nil
}

// IsMultimodalEnabled reports whether the base session accepts images.
func (m *Manager) IsMultimodalEnabled() bool {
	cur := m.state.Load()
	return cur != nil && cur.level == domain.CapabilityMultimodal
}

// SessionType returns the wire session type, or nil when uninitialized.
func (m *Manager) SessionType() *domain.SessionType {
	cur := m.state.Load()
	if cur == nil {
		return nil
	}
	st := cur.level.SessionType()
	return &st
}

// CurrentConfig returns the committed config.
func (m *Manager) CurrentConfig() (domain.SessionConfig, bool) {
	cur := m.state.Load()
	if cur == nil {
		return domain.SessionConfig{}, false
	}
	return cur.config, true
}

// FilterCriteria returns the committed prompt, or "" when uninitialized.
func (m *Manager) FilterCriteria() string {
	cur := m.state.Load()
	if cur == nil {
		return ""
	}
	return cur.config.Prompt
}

// Status summarizes the state for an InitResponse.
func (m *Manager) Status() domain.SessionStatus {
	return domain.SessionStatus{
		IsMultimodal: m.IsMultimodalEnabled(),
		SessionType:  m.SessionType(),
	}
}
