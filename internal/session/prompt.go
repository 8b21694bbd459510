package session

import (
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
)

var languageNames = map[domain.OutputLanguage]string{
	domain.OutputLanguageEnglish:  "English",
	domain.OutputLanguageSpanish:  "Spanish",
	domain.OutputLanguageJapanese: "Japanese",
}

func sessionOptions(caps domain.CapabilitySet, cfg domain.SessionConfig) ports.SessionOptions {
	return ports.SessionOptions{
		Capabilities:   caps,
		OutputLanguage: cfg.OutputLanguage,
		SystemPrompt:   systemPrompt(cfg.OutputLanguage),
	}
}

func systemPrompt(lang domain.OutputLanguage) string {
	name, ok := languageNames[lang]
	if !ok {
		name = languageNames[domain.OutputLanguageEnglish]
	}
	return "You are a content filter for a social media feed. " +
		"You judge whether posts match a user's interests and always answer with the exact JSON format requested. " +
		"When asked to describe images, answer briefly in " + name + "."
}
