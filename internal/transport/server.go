package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/codec"
)

// Handler serves one message variant.
type Handler func(ctx context.Context, msg domain.Message) (domain.Message, error)

// Server is the inbound side of a context.
type Server struct {
	name     string
	handlers map[domain.MessageType]Handler
	logger   *slog.Logger
}

// NewServer creates a server with no handlers. name identifies the context in logs.
func NewServer(name string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		name:     name,
		handlers: make(map[domain.MessageType]Handler),
		logger:   logger.With(slog.String("context", name)),
	}
}

// Handle registers the handler for a variant, replacing any previous one.
func (s *Server) Handle(t domain.MessageType, h Handler) {
	s.handlers[t] = h
}

// Serve answers one inbound payload. It never fails: decode errors,
// unexpected variants, handler errors and panics all become an
// ErrorMessage. Answers carry the request's id.
func (s *Server) Serve(ctx context.Context, payload []byte) []byte {
	raw, err := codec.ParseValue(payload)
	if err != nil {
		s.logger.Warn("rejected malformed payload", slog.String("error", err.Error()))
		return s.errorResponse(err, "")
	}

	msg, err := codec.Decode(raw)
	if err != nil {
		requestID := codec.RequestIDOf(raw)
		s.logger.Warn("rejected invalid message",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return s.errorResponse(err, requestID)
	}

	requestID := msg.Meta().RequestID
	h, ok := s.handlers[msg.Type()]
	if !ok {
		err := domain.NewError(domain.ErrorTypeInvalidRequest,
			fmt.Sprintf("unexpected message type %s for %s context", msg.Type(), s.name))
		s.logger.Warn("no handler", slog.String("type", string(msg.Type())), slog.String("request_id", requestID))
		return s.errorResponse(err, requestID)
	}

	resp, err := s.invoke(ctx, h, msg)
	if err != nil {
		s.logger.Warn("handler failed",
			slog.String("type", string(msg.Type())),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return s.errorResponse(err, requestID)
	}

	resp.Stamp(requestID, time.Now().UnixMilli())
	out, err := codec.Marshal(resp)
	if err != nil {
		return s.errorResponse(err, requestID)
	}
	return out
}

func (s *Server) invoke(ctx context.Context, h Handler, msg domain.Message) (resp domain.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				slog.String("type", string(msg.Type())),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			resp, err = nil, fmt.Errorf("internal error handling %s: %v", msg.Type(), r)
		}
	}()

	resp, err = h(ctx, msg)
	if err == nil && resp == nil {
		err = fmt.Errorf("handler for %s returned no response", msg.Type())
	}
	return resp, err
}

func (s *Server) errorResponse(err error, originalRequestID string) []byte {
	requestID := originalRequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	em := domain.NewErrorMessage(err.Error(), originalRequestID)
	em.Stamp(requestID, time.Now().UnixMilli())

	out, merr := codec.Marshal(em)
	if merr != nil {
		// ErrorMessage always encodes.
		panic(merr)
	}
	return out
}
