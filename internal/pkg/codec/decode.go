package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

// Decode validates a wire value and converts it to a message.
func Decode(raw any) (domain.Message, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, domain.ErrDecode("", fmt.Sprintf("message must be an object, got %s", kindOf(raw)))
	}
	r := &reader{obj: obj}

	typ, err := r.str("type")
	if err != nil {
		return nil, err
	}
	requestID, err := r.str("requestId")
	if err != nil {
		return nil, err
	}
	timestamp, err := r.integer("timestamp")
	if err != nil {
		return nil, err
	}

	msg, err := decodeBody(domain.MessageType(typ), r)
	if err != nil {
		return nil, err
	}
	msg.Stamp(requestID, timestamp)
	return msg, nil
}

func decodeBody(typ domain.MessageType, r *reader) (domain.Message, error) {
	switch typ {
	case domain.MessageTypeInitRequest:
		cfg, err := r.config("config")
		if err != nil {
			return nil, err
		}
		return &domain.InitRequest{Config: cfg}, nil

	case domain.MessageTypeInitResponse:
		success, err := r.boolean("success")
		if err != nil {
			return nil, err
		}
		status, err := r.object("sessionStatus")
		if err != nil {
			return nil, err
		}
		isMultimodal, err := status.boolean("isMultimodal")
		if err != nil {
			return nil, err
		}
		sessionType, err := status.optSessionType("sessionType")
		if err != nil {
			return nil, err
		}
		errText, err := r.optStr("error")
		if err != nil {
			return nil, err
		}
		return &domain.InitResponse{
			Success:       success,
			SessionStatus: domain.SessionStatus{IsMultimodal: isMultimodal, SessionType: sessionType},
			Error:         errText,
		}, nil

	case domain.MessageTypeEvaluateRequest:
		tweetID, err := r.str("tweetId")
		if err != nil {
			return nil, err
		}
		text, err := r.str("textContent")
		if err != nil {
			return nil, err
		}
		media, err := r.media("media")
		if err != nil {
			return nil, err
		}
		quoted, err := r.quoted("quotedTweet")
		if err != nil {
			return nil, err
		}
		return &domain.EvaluateRequest{TweetID: tweetID, TextContent: text, Media: media, QuotedTweet: quoted}, nil

	case domain.MessageTypeEvaluateResponse:
		tweetID, err := r.str("tweetId")
		if err != nil {
			return nil, err
		}
		show, err := r.boolean("shouldShow")
		if err != nil {
			return nil, err
		}
		hit, err := r.boolean("cacheHit")
		if err != nil {
			return nil, err
		}
		elapsed, err := r.integer("evaluationTime")
		if err != nil {
			return nil, err
		}
		errText, err := r.optStr("error")
		if err != nil {
			return nil, err
		}
		return &domain.EvaluateResponse{
			TweetID: tweetID, ShouldShow: show, CacheHit: hit, EvaluationTime: elapsed, Error: errText,
		}, nil

	case domain.MessageTypeCacheCheckRequest:
		ids, err := r.strings("tweetIds")
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			ids = nil
		}
		return &domain.CacheCheckRequest{TweetIDs: ids}, nil

	case domain.MessageTypeCacheCheckResponse:
		results, err := r.object("results")
		if err != nil {
			return nil, err
		}
		var out map[string]bool
		if len(results.obj) > 0 {
			out = make(map[string]bool, len(results.obj))
		}
		for id := range results.obj {
			show, err := results.boolean(id)
			if err != nil {
				return nil, err
			}
			out[id] = show
		}
		return &domain.CacheCheckResponse{Results: out}, nil

	case domain.MessageTypeSessionStatusRequest:
		return &domain.SessionStatusRequest{}, nil

	case domain.MessageTypeSessionStatusResponse:
		initialized, err := r.boolean("initialized")
		if err != nil {
			return nil, err
		}
		isMultimodal, err := r.boolean("isMultimodal")
		if err != nil {
			return nil, err
		}
		current, err := r.optConfig("currentConfig")
		if err != nil {
			return nil, err
		}
		return &domain.SessionStatusResponse{Initialized: initialized, IsMultimodal: isMultimodal, CurrentConfig: current}, nil

	case domain.MessageTypeReinitRequest:
		cfg, err := r.config("config")
		if err != nil {
			return nil, err
		}
		return &domain.ReinitRequest{Config: cfg}, nil

	case domain.MessageTypeError:
		text, err := r.str("error")
		if err != nil {
			return nil, err
		}
		original, err := r.optStr("originalRequestId")
		if err != nil {
			return nil, err
		}
		return &domain.ErrorMessage{Error: text, OriginalRequestID: original}, nil
	}

	return nil, domain.ErrDecode("type", fmt.Sprintf("unknown message type %q", string(typ)))
}

// reader validates fields of one object. prefix qualifies field names in errors.
type reader struct {
	obj    map[string]any
	prefix string
}

func (r *reader) path(field string) string {
	if r.prefix == "" {
		return field
	}
	return r.prefix + "." + field
}

func (r *reader) missing(field string) error {
	return domain.ErrDecode(r.path(field), "required field missing")
}

func (r *reader) wrongKind(field, want string, got any) error {
	return domain.ErrDecode(r.path(field), fmt.Sprintf("expected %s, got %s", want, kindOf(got)))
}

// lookup returns the value and whether it is present and non-null.
func (r *reader) lookup(field string) (any, bool) {
	v, ok := r.obj[field]
	return v, ok && v != nil
}

func (r *reader) str(field string) (string, error) {
	v, ok := r.lookup(field)
	if !ok {
		return "", r.missing(field)
	}
	s, ok := v.(string)
	if !ok {
		return "", r.wrongKind(field, "string", v)
	}
	return s, nil
}

func (r *reader) optStr(field string) (*string, error) {
	v, ok := r.lookup(field)
	if !ok {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, r.wrongKind(field, "string", v)
	}
	return &s, nil
}

func (r *reader) boolean(field string) (bool, error) {
	v, ok := r.lookup(field)
	if !ok {
		return false, r.missing(field)
	}
	b, ok := v.(bool)
	if !ok {
		return false, r.wrongKind(field, "boolean", v)
	}
	return b, nil
}

func (r *reader) integer(field string) (int64, error) {
	v, ok := r.lookup(field)
	if !ok {
		return 0, r.missing(field)
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, r.wrongKind(field, "integer", v)
	}
	return n, nil
}

func (r *reader) object(field string) (*reader, error) {
	v, ok := r.lookup(field)
	if !ok {
		return nil, r.missing(field)
	}
	return r.asObject(field, v)
}

func (r *reader) optObject(field string) (*reader, error) {
	v, ok := r.lookup(field)
	if !ok {
		return nil, nil
	}
	return r.asObject(field, v)
}

func (r *reader) asObject(field string, v any) (*reader, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, r.wrongKind(field, "object", v)
	}
	return &reader{obj: obj, prefix: r.path(field)}, nil
}

func (r *reader) array(field string) ([]any, bool, error) {
	v, ok := r.lookup(field)
	if !ok {
		return nil, false, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, true, r.wrongKind(field, "array", v)
	}
	return arr, true, nil
}

func (r *reader) strings(field string) ([]string, error) {
	arr, present, err := r.array(field)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, r.missing(field)
	}
	out := make([]string, len(arr))
	for i, el := range arr {
		s, ok := el.(string)
		if !ok {
			return nil, domain.ErrDecode(fmt.Sprintf("%s[%d]", r.path(field), i),
				fmt.Sprintf("expected string, got %s", kindOf(el)))
		}
		out[i] = s
	}
	return out, nil
}

func (r *reader) media(field string) ([]domain.MediaItem, error) {
	arr, present, err := r.array(field)
	if err != nil || !present {
		return nil, err
	}
	out := make([]domain.MediaItem, len(arr))
	for i, el := range arr {
		elField := fmt.Sprintf("%s[%d]", field, i)
		item, err := r.asObject(elField, el)
		if err != nil {
			return nil, err
		}
		typ, err := item.str("type")
		if err != nil {
			return nil, err
		}
		mediaType, ok := domain.ParseMediaType(typ)
		if !ok {
			return nil, domain.ErrDecode(item.path("type"), fmt.Sprintf("unsupported media type %q", typ))
		}
		url, err := item.str("url")
		if err != nil {
			return nil, err
		}
		out[i] = domain.MediaItem{Type: mediaType, URL: url}
	}
	return out, nil
}

func (r *reader) quoted(field string) (*domain.QuotedTweet, error) {
	q, err := r.optObject(field)
	if err != nil || q == nil {
		return nil, err
	}
	text, err := q.str("textContent")
	if err != nil {
		return nil, err
	}
	author, err := q.optStr("author")
	if err != nil {
		return nil, err
	}
	media, err := q.media("media")
	if err != nil {
		return nil, err
	}
	return &domain.QuotedTweet{TextContent: text, Author: author, Media: media}, nil
}

func (r *reader) config(field string) (domain.SessionConfig, error) {
	c, err := r.object(field)
	if err != nil {
		return domain.SessionConfig{}, err
	}
	return c.sessionConfig()
}

func (r *reader) optConfig(field string) (*domain.SessionConfig, error) {
	c, err := r.optObject(field)
	if err != nil || c == nil {
		return nil, err
	}
	cfg, err := c.sessionConfig()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *reader) sessionConfig() (domain.SessionConfig, error) {
	prompt, err := r.str("prompt")
	if err != nil {
		return domain.SessionConfig{}, err
	}
	token, err := r.str("outputLanguage")
	if err != nil {
		return domain.SessionConfig{}, err
	}
	lang, ok := domain.ParseOutputLanguage(token)
	if !ok {
		return domain.SessionConfig{}, domain.ErrDecode(r.path("outputLanguage"),
			fmt.Sprintf("unsupported output language %q", token))
	}
	return domain.SessionConfig{Prompt: prompt, OutputLanguage: lang}, nil
}

func (r *reader) optSessionType(field string) (*domain.SessionType, error) {
	s, err := r.optStr(field)
	if err != nil || s == nil {
		return nil, err
	}
	st, ok := domain.ParseSessionType(*s)
	if !ok {
		return nil, domain.ErrDecode(r.path(field), fmt.Sprintf("unsupported session type %q", *s))
	}
	return &st, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	}
	return 0, false
}

// floatToInt64 accepts only integral values inside the int64 range.
func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int32, int64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
