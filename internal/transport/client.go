// Package transport carries protocol messages between contexts.
//
// A Client stamps, encodes and sends one request and classifies the answer.
// A Server decodes inbound payloads, dispatches them to exactly one handler
// and always answers, turning every failure into an ErrorMessage. Bindings
// (in-process loopback, HTTP) only move bytes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/ports"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/codec"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/deadline"
	"github.com/tjfontaine/polyglot-feed-filter/internal/telemetry"
)

// Client sends requests to one peer context.
type Client struct {
	transport ports.Transport
	logger    *slog.Logger
}

// NewClient creates a client over a transport binding.
func NewClient(t ports.Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{transport: t, logger: logger}
}

// Send stamps msg with a fresh request id and the current time, sends it and
// waits up to timeout for the answer.
//
// It fails with domain.ErrContextInvalidated without sending when the
// binding reports it is gone, with a transport error when the send fails or
// nothing comes back, with a timeout error when the bound elapses, and with
// a remote error carrying the peer's text when the peer answers with an
// ErrorMessage. Any other decoded answer is returned as is.
func (c *Client) Send(ctx context.Context, msg domain.Message, timeout time.Duration) (domain.Message, error) {
	typ := msg.Type()

	if lr, ok := c.transport.(ports.LivenessReporter); ok && !lr.Alive() {
		telemetry.ClientRequests.WithLabelValues(string(typ), "invalidated").Inc()
		return nil, domain.ErrContextInvalidated
	}

	msg.Stamp(uuid.NewString(), time.Now().UnixMilli())

	ctx, span := telemetry.Tracer().Start(ctx, "transport.Send",
		trace.WithAttributes(
			attribute.String("feedfilter.message_type", string(typ)),
			attribute.String("feedfilter.request_id", msg.Meta().RequestID),
		))
	defer span.End()

	resp, err := c.send(ctx, msg, timeout)
	outcome := "ok"
	if err != nil {
		outcome = string(domain.AsError(err).Type)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("request failed",
			slog.String("type", string(typ)),
			slog.String("request_id", msg.Meta().RequestID),
			slog.String("error", err.Error()))
	}
	telemetry.ClientRequests.WithLabelValues(string(typ), outcome).Inc()
	return resp, err
}

func (c *Client) send(ctx context.Context, msg domain.Message, timeout time.Duration) (domain.Message, error) {
	payload, err := codec.Marshal(msg)
	if err != nil {
		return nil, err
	}

	raw, err := deadline.Run(ctx, timeout, fmt.Sprintf("%s request", msg.Type()), func(ctx context.Context) ([]byte, error) {
		return c.transport.Send(ctx, payload)
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.ErrTransport(fmt.Sprintf("send %s: %v", msg.Type(), err), err)
	}
	if len(raw) == 0 {
		return nil, domain.NewError(domain.ErrorTypeTransport, "no response").WithCode(domain.ErrorCodeNoResponse)
	}

	resp, err := codec.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if em, ok := resp.(*domain.ErrorMessage); ok {
		return nil, domain.ErrRemote(em.Error)
	}
	return resp, nil
}

// Call sends msg and requires an answer of variant T.
func Call[T domain.Message](ctx context.Context, c *Client, msg domain.Message, timeout time.Duration) (T, error) {
	var zero T
	resp, err := c.Send(ctx, msg, timeout)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, domain.ErrUnexpectedResponse(zero.Type(), resp.Type())
	}
	return typed, nil
}
