package llmrouter

import "fmt"

// RouterError is the base error type for this package.
type RouterError struct {
	Message string
	Cause   error
}

func (e *RouterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RouterError) Unwrap() error {
	return e.Cause
}

// ConfigurationError means a required backend for a required modality is
// missing. Fatal: never retried, never substituted.
type ConfigurationError struct{ RouterError }

// EmptyStreamError means a stream produced zero events. Distinct from a
// valid text-only response with no tool calls.
type EmptyStreamError struct{ RouterError }

// IncompleteStreamError means a stream ended without a terminal event, so
// the response cannot be trusted as complete.
type IncompleteStreamError struct{ RouterError }

// BackendError wraps a provider or network failure from one backend call.
type BackendError struct {
	RouterError
	Backend    string
	StatusCode int
	Retryable  bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Backend, e.Message, e.StatusCode, e.Retryable)
}

// NewBackendError builds a BackendError classified by HTTP status code.
// 4xx codes other than 408/429 are permanent; everything else is worth one
// more attempt against the same backend.
func NewBackendError(backend string, statusCode int, cause error) *BackendError {
	retryable := true
	switch {
	case statusCode == 408, statusCode == 429:
		retryable = true
	case statusCode >= 400 && statusCode < 500:
		retryable = false
	}
	msg := "backend request failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &BackendError{
		RouterError: RouterError{Message: msg, Cause: cause},
		Backend:     backend,
		StatusCode:  statusCode,
		Retryable:   retryable,
	}
}

// IsRetryable reports whether the error is safe to retry against the same
// backend. Configuration errors are never retried; stream assembly
// failures are, since a second attempt gets a fresh stream.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ConfigurationError:
		return false
	case *BackendError:
		return e.Retryable
	case *EmptyStreamError:
		return true
	case *IncompleteStreamError:
		return true
	default:
		// Unknown errors default to retryable.
		return true
	}
}
