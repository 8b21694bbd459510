// Package ports defines the core interfaces for the filter.
// This file contains the inference host interfaces used by the offscreen context.
package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

// SessionOptions configures a session at creation time.
type SessionOptions struct {
	// Capabilities lists the required input modalities.
	Capabilities domain.CapabilitySet
	// OutputLanguage is the language the model should answer in.
	OutputLanguage domain.OutputLanguage
	// SystemPrompt is sent ahead of every prompt.
	SystemPrompt string
}

// LanguageModel is the host's inference capability.
type LanguageModel interface {
	// Availability returns the host's raw availability token for the options.
	Availability(ctx context.Context, opts SessionOptions) (string, error)

	// Create creates a new base session.
	Create(ctx context.Context, opts SessionOptions) (Session, error)
}

// PromptPart is one piece of a prompt. Exactly one of Text or Image is set.
type PromptPart struct {
	Text  string
	Image []byte
}

// TextPart builds a text prompt part.
func TextPart(s string) PromptPart { return PromptPart{Text: s} }

// ImagePart builds an image prompt part.
func ImagePart(b []byte) PromptPart { return PromptPart{Image: b} }

// Session is a stateful inference handle. It is not safe for concurrent use.
type Session interface {
	// Prompt sends one user turn and returns the model's text.
	Prompt(ctx context.Context, parts []PromptPart) (string, error)

	// Clone returns an independent copy of the session.
	Clone(ctx context.Context) (Session, error)

	// Destroy releases the session. Later calls fail.
	Destroy(ctx context.Context) error
}

// ImageFetcher fetches image bytes by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
