package llmrouter

import (
	"errors"
	"strings"
	"testing"
)

func TestBackendErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{0, true}, // network failure, no HTTP status
	}
	for _, tt := range tests {
		err := NewBackendError("remote", tt.status, errors.New("request failed"))
		if err.Retryable != tt.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, err.Retryable)
		}
	}
}

func TestBackendErrorMessage(t *testing.T) {
	err := NewBackendError("local", 429, errors.New("rate limited"))
	msg := err.Error()
	if !strings.Contains(msg, "local") || !strings.Contains(msg, "429") {
		t.Errorf("expected backend and status in message, got %q", msg)
	}
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewBackendError("remote", 0, cause)
	if !errors.Is(err, cause) {
		t.Error("expected BackendError to unwrap to its cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"configuration", &ConfigurationError{RouterError{Message: "no backend"}}, false},
		{"empty stream", &EmptyStreamError{RouterError{Message: "no events"}}, true},
		{"incomplete stream", &IncompleteStreamError{RouterError{Message: "no terminal"}}, true},
		{"retryable backend", NewBackendError("remote", 500, nil), true},
		{"permanent backend", NewBackendError("remote", 401, nil), false},
		{"unknown", errors.New("something else"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRouterErrorWithoutCause(t *testing.T) {
	err := &RouterError{Message: "bare message"}
	if err.Error() != "bare message" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("expected nil unwrap without cause")
	}
}
