package domain

// MessageType is the wire discriminant carried in the "type" field.
type MessageType string

const (
	MessageTypeInitRequest           MessageType = "initRequest"
	MessageTypeInitResponse          MessageType = "initResponse"
	MessageTypeEvaluateRequest       MessageType = "evaluateRequest"
	MessageTypeEvaluateResponse      MessageType = "evaluateResponse"
	MessageTypeCacheCheckRequest     MessageType = "cacheCheckRequest"
	MessageTypeCacheCheckResponse    MessageType = "cacheCheckResponse"
	MessageTypeSessionStatusRequest  MessageType = "sessionStatusRequest"
	MessageTypeSessionStatusResponse MessageType = "sessionStatusResponse"
	MessageTypeReinitRequest         MessageType = "reinitRequest"
	MessageTypeError                 MessageType = "error"
)

// MessageTypes lists every known discriminant.
var MessageTypes = []MessageType{
	MessageTypeInitRequest,
	MessageTypeInitResponse,
	MessageTypeEvaluateRequest,
	MessageTypeEvaluateResponse,
	MessageTypeCacheCheckRequest,
	MessageTypeCacheCheckResponse,
	MessageTypeSessionStatusRequest,
	MessageTypeSessionStatusResponse,
	MessageTypeReinitRequest,
	MessageTypeError,
}

// Valid reports whether t is a known discriminant.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Envelope carries the fields shared by every message.
type Envelope struct {
	// RequestID is a caller-generated unique token.
	RequestID string
	// Timestamp is epoch milliseconds set by the sender.
	Timestamp int64
}

// Meta returns the envelope.
func (e *Envelope) Meta() Envelope { return *e }

// Stamp overwrites the envelope.
func (e *Envelope) Stamp(requestID string, timestamp int64) {
	e.RequestID = requestID
	e.Timestamp = timestamp
}

// Message is the closed union of protocol messages. Only the variants in
// this file implement it.
type Message interface {
	Type() MessageType
	Meta() Envelope
	Stamp(requestID string, timestamp int64)
	isMessage()
}

// MediaType enumerates supported media entries.
type MediaType string

const MediaTypeImage MediaType = "image"

// MediaItem is one attached media entry.
type MediaItem struct {
	Type MediaType
	URL  string
}

// QuotedTweet is the secondary content embedded in a feed item.
type QuotedTweet struct {
	TextContent string
	Author      *string
	// Media is nil when absent on the wire.
	Media []MediaItem
}

// SessionStatus describes the offscreen session after an init.
type SessionStatus struct {
	IsMultimodal bool
	SessionType  *SessionType
}

// InitRequest asks the offscreen context to initialize its session.
type InitRequest struct {
	Envelope
	Config SessionConfig
}

// InitResponse reports the outcome of an InitRequest or ReinitRequest.
type InitResponse struct {
	Envelope
	Success       bool
	SessionStatus SessionStatus
	Error         *string
}

// EvaluateRequest asks for a verdict on one feed item.
type EvaluateRequest struct {
	Envelope
	TweetID     string
	TextContent string
	// Media is nil when absent on the wire.
	Media       []MediaItem
	QuotedTweet *QuotedTweet
}

// EvaluateResponse carries the verdict for one feed item.
type EvaluateResponse struct {
	Envelope
	TweetID    string
	ShouldShow bool
	CacheHit   bool
	// EvaluationTime is in milliseconds.
	EvaluationTime int64
	Error          *string
}

// CacheCheckRequest asks for cached verdicts of several items. An empty list
// travels as [] and decodes as nil.
type CacheCheckRequest struct {
	Envelope
	TweetIDs []string
}

// CacheCheckResponse holds the cached subset of the requested ids. An empty
// set travels as {} and decodes as nil.
type CacheCheckResponse struct {
	Envelope
	Results map[string]bool
}

// SessionStatusRequest asks for the offscreen session state.
type SessionStatusRequest struct {
	Envelope
}

// SessionStatusResponse reports the offscreen session state.
type SessionStatusResponse struct {
	Envelope
	Initialized   bool
	IsMultimodal  bool
	CurrentConfig *SessionConfig
}

// ReinitRequest replaces the session configuration.
type ReinitRequest struct {
	Envelope
	Config SessionConfig
}

// ErrorMessage is the failure response of any request.
type ErrorMessage struct {
	Envelope
	Error             string
	OriginalRequestID *string
}

func (*InitRequest) Type() MessageType           { return MessageTypeInitRequest }
func (*InitResponse) Type() MessageType          { return MessageTypeInitResponse }
func (*EvaluateRequest) Type() MessageType       { return MessageTypeEvaluateRequest }
func (*EvaluateResponse) Type() MessageType      { return MessageTypeEvaluateResponse }
func (*CacheCheckRequest) Type() MessageType     { return MessageTypeCacheCheckRequest }
func (*CacheCheckResponse) Type() MessageType    { return MessageTypeCacheCheckResponse }
func (*SessionStatusRequest) Type() MessageType  { return MessageTypeSessionStatusRequest }
func (*SessionStatusResponse) Type() MessageType { return MessageTypeSessionStatusResponse }
func (*ReinitRequest) Type() MessageType         { return MessageTypeReinitRequest }
func (*ErrorMessage) Type() MessageType          { return MessageTypeError }

func (*InitRequest) isMessage()           {}
func (*InitResponse) isMessage()          {}
func (*EvaluateRequest) isMessage()       {}
func (*EvaluateResponse) isMessage()      {}
func (*CacheCheckRequest) isMessage()     {}
func (*CacheCheckResponse) isMessage()    {}
func (*SessionStatusRequest) isMessage()  {}
func (*SessionStatusResponse) isMessage() {}
func (*ReinitRequest) isMessage()         {}
func (*ErrorMessage) isMessage()          {}

// NewErrorMessage builds an ErrorMessage answering originalRequestID.
// An empty originalRequestID leaves the field absent.
func NewErrorMessage(text, originalRequestID string) *ErrorMessage {
	msg := &ErrorMessage{Error: text}
	if originalRequestID != "" {
		msg.OriginalRequestID = &originalRequestID
	}
	return msg
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
