package ollama

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
)

// ErrDestroyed is returned by calls on a destroyed session.
var ErrDestroyed = errors.New("ollama session destroyed")

// Session is a conversation with one model. Ollama is stateless, so the
// session keeps the history and resends it with every prompt.
type Session struct {
	client *Client
	model  string

	mu        sync.Mutex
	history   []chatMessage
	destroyed bool
}

var _ ports.Session = (*Session)(nil)

// Prompt implements ports.Session. Image parts travel base64 encoded in the
// same user turn.
func (s *Session) Prompt(ctx context.Context, parts []ports.PromptPart) (string, error) {
	turn := chatMessage{Role: "user"}
	var text []string
	for _, p := range parts {
		if p.Image != nil {
			turn.Images = append(turn.Images, p.Image)
			continue
		}
		text = append(text, p.Text)
	}
	turn.Content = strings.Join(text, "\n")

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return "", ErrDestroyed
	}
	messages := make([]chatMessage, len(s.history), len(s.history)+1)
	copy(messages, s.history)
	s.mu.Unlock()

	reply, err := s.client.chat(ctx, s.model, append(messages, turn))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	// Images are not kept in history; later turns only need the text.
	s.history = append(s.history,
		chatMessage{Role: "user", Content: turn.Content},
		chatMessage{Role: "assistant", Content: reply})
	s.mu.Unlock()
	return reply, nil
}

// Clone implements ports.Session.
func (s *Session) Clone(ctx context.Context) (ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	history := make([]chatMessage, len(s.history))
	copy(history, s.history)
	return &Session{client: s.client, model: s.model, history: history}, nil
}

// Destroy implements ports.Session.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.destroyed = true
	s.history = nil
	return nil
}
