// Package codec converts protocol messages to and from the transport-neutral
// structured value that crosses context boundaries.
//
// The codec pattern keeps every boundary symmetric:
//   - Sender: domain.Message → Encode() → Value → Marshal() → bytes
//   - Receiver: bytes → Unmarshal() → Value → Decode() → domain.Message
//
// Encode is total. Decode is strict: any shape it does not recognise is a
// *domain.Error of type protocol_decode naming the offending field.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

// Value is the transport-neutral form of a message: a JSON-compatible tree of
// map[string]any, []any, string, bool, numbers and nil.
type Value = map[string]any

// Encode converts a message to its wire value. Optional fields are written as
// explicit nulls.
func Encode(msg domain.Message) Value {
	meta := msg.Meta()
	v := Value{
		"type":      string(msg.Type()),
		"requestId": meta.RequestID,
		"timestamp": meta.Timestamp,
	}

	switch m := msg.(type) {
	case *domain.InitRequest:
		v["config"] = encodeConfig(m.Config)
	case *domain.InitResponse:
		v["success"] = m.Success
		v["sessionStatus"] = encodeSessionStatus(m.SessionStatus)
		v["error"] = optString(m.Error)
	case *domain.EvaluateRequest:
		v["tweetId"] = m.TweetID
		v["textContent"] = m.TextContent
		v["media"] = encodeMedia(m.Media)
		v["quotedTweet"] = encodeQuoted(m.QuotedTweet)
	case *domain.EvaluateResponse:
		v["tweetId"] = m.TweetID
		v["shouldShow"] = m.ShouldShow
		v["cacheHit"] = m.CacheHit
		v["evaluationTime"] = m.EvaluationTime
		v["error"] = optString(m.Error)
	case *domain.CacheCheckRequest:
		ids := make([]any, len(m.TweetIDs))
		for i, id := range m.TweetIDs {
			ids[i] = id
		}
		v["tweetIds"] = ids
	case *domain.CacheCheckResponse:
		results := make(map[string]any, len(m.Results))
		for id, show := range m.Results {
			results[id] = show
		}
		v["results"] = results
	case *domain.SessionStatusRequest:
	case *domain.SessionStatusResponse:
		v["initialized"] = m.Initialized
		v["isMultimodal"] = m.IsMultimodal
		if m.CurrentConfig != nil {
			v["currentConfig"] = encodeConfig(*m.CurrentConfig)
		} else {
			v["currentConfig"] = nil
		}
	case *domain.ReinitRequest:
		v["config"] = encodeConfig(m.Config)
	case *domain.ErrorMessage:
		v["error"] = m.Error
		v["originalRequestId"] = optString(m.OriginalRequestID)
	default:
		panic(fmt.Sprintf("codec: unhandled message variant %T", msg))
	}

	return v
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func encodeConfig(c domain.SessionConfig) Value {
	return Value{
		"prompt":         c.Prompt,
		"outputLanguage": string(c.OutputLanguage),
	}
}

func encodeSessionStatus(s domain.SessionStatus) Value {
	v := Value{"isMultimodal": s.IsMultimodal, "sessionType": nil}
	if s.SessionType != nil {
		v["sessionType"] = string(*s.SessionType)
	}
	return v
}

func encodeMedia(items []domain.MediaItem) any {
	if items == nil {
		return nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = Value{"type": string(item.Type), "url": item.URL}
	}
	return out
}

func encodeQuoted(q *domain.QuotedTweet) any {
	if q == nil {
		return nil
	}
	return Value{
		"textContent": q.TextContent,
		"author":      optString(q.Author),
		"media":       encodeMedia(q.Media),
	}
}

// Marshal encodes a message to JSON bytes.
func Marshal(msg domain.Message) ([]byte, error) {
	data, err := json.Marshal(Encode(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	return data, nil
}

// Unmarshal parses JSON bytes and decodes the result.
func Unmarshal(data []byte) (domain.Message, error) {
	raw, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// ParseValue parses JSON bytes into an untyped value without validating it.
// Numbers are kept as json.Number.
func ParseValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, domain.ErrDecode("", "invalid JSON").WithCause(err)
	}
	return raw, nil
}

// RequestIDOf extracts the requestId of a value that may not decode.
// It returns "" when none can be found.
func RequestIDOf(raw any) string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := obj["requestId"].(string)
	return id
}
