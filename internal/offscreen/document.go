package offscreen

import (
	"context"
	"sync"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/transport"
)

// Document hosts the offscreen context in process. It is both the
// ports.DocumentHost the background coordinator creates it through and the
// ports.Transport the background sends to it through. Until Create runs,
// sends go unanswered.
type Document struct {
	newRouter func() *Router

	mu      sync.RWMutex
	router  *Router
	binding *transport.Loopback
}

var (
	_ ports.DocumentHost = (*Document)(nil)
	_ ports.Transport    = (*Document)(nil)
)

// NewDocument creates a host that builds its router with newRouter on Create.
func NewDocument(newRouter func() *Router) *Document {
	return &Document{newRouter: newRouter}
}

// Exists implements ports.DocumentHost.
func (d *Document) Exists(ctx context.Context) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.router != nil, nil
}

// Create implements ports.DocumentHost.
func (d *Document) Create(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.router != nil {
		return domain.ErrAlreadyExists
	}
	d.router = d.newRouter()
	d.binding = transport.NewLoopback(d.router.Server())
	return nil
}

// Send implements ports.Transport.
func (d *Document) Send(ctx context.Context, payload []byte) ([]byte, error) {
	d.mu.RLock()
	binding := d.binding
	d.mu.RUnlock()
	if binding == nil {
		return nil, nil
	}
	return binding.Send(ctx, payload)
}

// Close tears the document down. A later Create starts a fresh one.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	router, binding := d.router, d.binding
	d.router, d.binding = nil, nil
	d.mu.Unlock()

	if router == nil {
		return nil
	}
	binding.Close()
	return router.Close(ctx)
}
