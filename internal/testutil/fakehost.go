// Package testutil provides fakes for the inference host and helpers shared
// by tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
)

// Responder produces the model's answer to one prompt.
type Responder func(ctx context.Context, parts []ports.PromptPart) (string, error)

// FakeModel is a scriptable ports.LanguageModel.
type FakeModel struct {
	mu sync.Mutex

	// MultimodalAvailability and TextAvailability are returned by Availability.
	MultimodalAvailability string
	TextAvailability       string

	// CreateErr, when set, is returned by Create for the matching tier.
	MultimodalCreateErr error
	TextCreateErr       error

	// Respond answers prompts. Nil answers `{"show": true}`.
	Respond Responder

	Creates   atomic.Int32
	Clones    atomic.Int32
	Destroys  atomic.Int32
	Prompts   atomic.Int32
	LastOpts  ports.SessionOptions
	createSeq int
}

// NewFakeModel returns a model where both tiers are available.
func NewFakeModel() *FakeModel {
	return &FakeModel{
		MultimodalAvailability: "available",
		TextAvailability:       "available",
	}
}

func (m *FakeModel) Availability(ctx context.Context, opts ports.SessionOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.Capabilities.Multimodal() {
		return m.MultimodalAvailability, nil
	}
	return m.TextAvailability, nil
}

func (m *FakeModel) Create(ctx context.Context, opts ports.SessionOptions) (ports.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	multimodal := opts.Capabilities.Multimodal()
	if multimodal && m.MultimodalCreateErr != nil {
		return nil, m.MultimodalCreateErr
	}
	if !multimodal && m.TextCreateErr != nil {
		return nil, m.TextCreateErr
	}

	m.Creates.Add(1)
	m.createSeq++
	m.LastOpts = opts
	return &FakeSession{model: m, ID: fmt.Sprintf("base-%d", m.createSeq), Multimodal: multimodal}, nil
}

// SetRespond replaces the responder.
func (m *FakeModel) SetRespond(r Responder) {
	m.mu.Lock()
	m.Respond = r
	m.mu.Unlock()
}

func (m *FakeModel) responder() Responder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Respond
}

// FakeSession is the session handed out by FakeModel.
type FakeSession struct {
	model      *FakeModel
	ID         string
	Multimodal bool
	destroyed  atomic.Bool
}

// ErrSessionDestroyed is returned by calls on a destroyed FakeSession.
var ErrSessionDestroyed = errors.New("session destroyed")

func (s *FakeSession) Prompt(ctx context.Context, parts []ports.PromptPart) (string, error) {
	if s.destroyed.Load() {
		return "", ErrSessionDestroyed
	}
	s.model.Prompts.Add(1)
	if r := s.model.responder(); r != nil {
		return r(ctx, parts)
	}
	return `{"show": true}`, nil
}

func (s *FakeSession) Clone(ctx context.Context) (ports.Session, error) {
	if s.destroyed.Load() {
		return nil, ErrSessionDestroyed
	}
	n := s.model.Clones.Add(1)
	return &FakeSession{model: s.model, ID: fmt.Sprintf("%s-clone-%d", s.ID, n), Multimodal: s.Multimodal}, nil
}

func (s *FakeSession) Destroy(ctx context.Context) error {
	if s.destroyed.Swap(true) {
		return ErrSessionDestroyed
	}
	s.model.Destroys.Add(1)
	return nil
}

// Destroyed reports whether Destroy was called.
func (s *FakeSession) Destroyed() bool {
	return s.destroyed.Load()
}

// PromptText joins the text parts of a prompt.
func PromptText(parts []ports.PromptPart) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// HasImage reports whether a prompt carries image bytes.
func HasImage(parts []ports.PromptPart) bool {
	for _, p := range parts {
		if p.Image != nil {
			return true
		}
	}
	return false
}

// FakeFetcher serves images from a map. Missing URLs fail.
type FakeFetcher struct {
	Images  map[string][]byte
	Fetches atomic.Int32
}

func (f *FakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.Fetches.Add(1)
	if b, ok := f.Images[url]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("fetch %s: not found", url)
}
