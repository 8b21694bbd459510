package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "type only",
			err:  NewError(ErrorTypeStorage, "write failed"),
			want: "storage: write failed",
		},
		{
			name: "with code",
			err:  NewError(ErrorTypeCapabilityUnavailable, "text model is unavailable").WithCode(ErrorCodeTextModelUnavailable),
			want: "capability_unavailable (text_model_unavailable): text model is unavailable",
		},
		{
			name: "with field",
			err:  ErrDecode("media[1].url", "expected string"),
			want: "protocol_decode: media[1].url: expected string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "fresh error with same code",
			err:    NewError(ErrorTypeCapabilityUnavailable, "text model is downloading").WithCode(ErrorCodeTextModelUnavailable),
			target: ErrTextModelUnavailable,
			want:   true,
		},
		{
			name:   "same type different code",
			err:    NewError(ErrorTypeCapabilityUnavailable, "other").WithCode(ErrorCodeNoResponse),
			target: ErrTextModelUnavailable,
			want:   false,
		},
		{
			name:   "codeless target matches any code",
			err:    ErrNoCriteria,
			target: NewError(ErrorTypeNotInitialized, ""),
			want:   true,
		},
		{
			name:   "different type",
			err:    ErrTimeout("prompt timed out"),
			target: ErrNotInitialized,
			want:   false,
		},
		{
			name:   "wrapped",
			err:    fmt.Errorf("acquire session: %w", ErrNotInitialized),
			target: ErrNotInitialized,
			want:   true,
		},
		{
			name:   "plain error",
			err:    errors.New("session not initialized"),
			target: ErrNotInitialized,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrStorage("write cache", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if NewError(ErrorTypeRemote, "x").Unwrap() != nil {
		t.Error("Unwrap() without cause != nil")
	}
}

func TestError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    int
	}{
		{ErrorTypeProtocolDecode, http.StatusBadRequest},
		{ErrorTypeInvalidRequest, http.StatusBadRequest},
		{ErrorTypeCapabilityUnavailable, http.StatusServiceUnavailable},
		{ErrorTypeNotInitialized, http.StatusServiceUnavailable},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeTransport, http.StatusBadGateway},
		{ErrorTypeRemote, http.StatusBadGateway},
		{ErrorTypeUnexpectedResponse, http.StatusBadGateway},
		{ErrorTypeStorage, http.StatusInternalServerError},
		{ErrorTypeStorageCorruption, http.StatusInternalServerError},
		{ErrorTypeSessionCreateFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			if got := NewError(tt.errType, "x").HTTPStatusCode(); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAsError(t *testing.T) {
	canonical := ErrTimeout("evaluate timed out")
	if got := AsError(fmt.Errorf("call: %w", canonical)); got != canonical {
		t.Errorf("AsError(wrapped) = %v, want the canonical error", got)
	}

	plain := errors.New("boom")
	got := AsError(plain)
	if got.Type != ErrorTypeInvalidRequest || got.Message != "boom" {
		t.Errorf("AsError(plain) = %+v", got)
	}
	if !errors.Is(got, plain) {
		t.Error("AsError(plain) lost its cause")
	}
}

func TestErrUnexpectedResponse(t *testing.T) {
	err := ErrUnexpectedResponse(MessageTypeEvaluateResponse, MessageTypeInitResponse)
	if err.Type != ErrorTypeUnexpectedResponse {
		t.Errorf("Type = %q", err.Type)
	}
	want := fmt.Sprintf("expected %s, got %s", MessageTypeEvaluateResponse, MessageTypeInitResponse)
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}
