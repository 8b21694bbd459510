package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// DocumentHost creates the context that hosts the inference session.
// Implementations: in-process offscreen document (default).
type DocumentHost interface {
	// Exists reports whether the hosted context is alive. It is idempotent.
	Exists(ctx context.Context) (bool, error)

	// Create brings the hosted context up. It returns an error matching
	// domain.ErrAlreadyExists when a concurrent caller won the race.
	Create(ctx context.Context) error
}

// Transport sends one serialized message to a peer context and awaits its
// serialized answer. A nil answer with a nil error means the peer did not respond.
type Transport interface {
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// LivenessReporter is implemented by transports whose sending side can be torn
// down by the host. Alive returning false makes clients fail fast.
type LivenessReporter interface {
	Alive() bool
}

// StatusReporter lets other packages read the session state without holding it.
type StatusReporter interface {
	IsInitialized() bool
	IsMultimodalEnabled() bool
	CurrentConfig() (domain.SessionConfig, bool)
}
