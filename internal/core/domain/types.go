package domain

import (
	"strings"
)

// OutputLanguage is the language the model answers in.
type OutputLanguage string

const (
	OutputLanguageEnglish  OutputLanguage = "en"
	OutputLanguageSpanish  OutputLanguage = "es"
	OutputLanguageJapanese OutputLanguage = "ja"
)

// ParseOutputLanguage normalizes a token (trim + lowercase) and reports
// whether it names a supported language.
func ParseOutputLanguage(s string) (OutputLanguage, bool) {
	switch OutputLanguage(strings.ToLower(strings.TrimSpace(s))) {
	case OutputLanguageEnglish:
		return OutputLanguageEnglish, true
	case OutputLanguageSpanish:
		return OutputLanguageSpanish, true
	case OutputLanguageJapanese:
		return OutputLanguageJapanese, true
	}
	return "", false
}

// SessionType is the wire name of a capability level.
type SessionType string

const (
	SessionTypeMultimodal SessionType = "multimodal"
	SessionTypeTextOnly   SessionType = "text-only"
)

// ParseSessionType normalizes a token and reports whether it is known.
func ParseSessionType(s string) (SessionType, bool) {
	switch SessionType(strings.ToLower(strings.TrimSpace(s))) {
	case SessionTypeMultimodal:
		return SessionTypeMultimodal, true
	case SessionTypeTextOnly:
		return SessionTypeTextOnly, true
	}
	return "", false
}

// ParseMediaType normalizes a token and reports whether it is supported.
func ParseMediaType(s string) (MediaType, bool) {
	if MediaType(strings.ToLower(strings.TrimSpace(s))) == MediaTypeImage {
		return MediaTypeImage, true
	}
	return "", false
}

// CapabilityLevel is what the committed session can take as input.
type CapabilityLevel int

const (
	CapabilityTextOnly CapabilityLevel = iota
	CapabilityMultimodal
)

// SessionType maps the level to its wire name.
func (l CapabilityLevel) SessionType() SessionType {
	if l == CapabilityMultimodal {
		return SessionTypeMultimodal
	}
	return SessionTypeTextOnly
}

func (l CapabilityLevel) String() string {
	return string(l.SessionType())
}

// SessionConfig is what a session is created for.
type SessionConfig struct {
	Prompt         string
	OutputLanguage OutputLanguage
}

// Equal compares configs structurally, ignoring surrounding whitespace in
// the prompt.
func (c SessionConfig) Equal(other SessionConfig) bool {
	return strings.TrimSpace(c.Prompt) == strings.TrimSpace(other.Prompt) &&
		c.OutputLanguage == other.OutputLanguage
}

// Modality is an input or output kind of a session.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// CapabilitySet describes the inputs a session must accept.
type CapabilitySet struct {
	Inputs []Modality
}

// Multimodal reports whether the set requires image input.
func (c CapabilitySet) Multimodal() bool {
	for _, m := range c.Inputs {
		if m == ModalityImage {
			return true
		}
	}
	return false
}

var (
	// MultimodalCapabilities is tried first by the session manager.
	MultimodalCapabilities = CapabilitySet{Inputs: []Modality{ModalityText, ModalityImage}}
	// TextCapabilities is the fallback.
	TextCapabilities = CapabilitySet{Inputs: []Modality{ModalityText}}
)

// Settings is the persisted user configuration, owned by the options page.
type Settings struct {
	Enabled        bool           `json:"enabled"`
	Prompt         string         `json:"prompt"`
	ShowStatistics bool           `json:"showStatistics"`
	OutputLanguage OutputLanguage `json:"outputLanguage"`
}

// DefaultSettings is used when nothing valid is stored.
func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		Prompt:         "",
		ShowStatistics: false,
		OutputLanguage: OutputLanguageEnglish,
	}
}

// SessionConfig extracts the part of the settings that drives the session.
func (s Settings) SessionConfig() SessionConfig {
	return SessionConfig{
		Prompt:         strings.TrimSpace(s.Prompt),
		OutputLanguage: s.OutputLanguage,
	}
}
