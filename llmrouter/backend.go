package llmrouter

import "context"

// Backend describes one configured chat-completion endpoint. The set of
// backends is fixed for the lifetime of a run.
type Backend struct {
	ID             string `json:"id"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"-"`
	SupportsImages bool   `json:"supports_images"`
}

// ChatBackend is the interface every backend client must implement.
type ChatBackend interface {
	// Name returns the backend identifier ("local", "remote", "multimodal").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*AssembledResponse, error)

	// Stream sends a request and returns an ordered event sequence. The
	// channel is closed when the stream ends; a well-formed stream ends
	// with a terminal finish event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// BoundBackend pairs a backend descriptor with its client.
type BoundBackend struct {
	Backend
	Client ChatBackend
}

// BackendSet holds the backends configured for a run. Local and Remote are
// the general-purpose pair; Multimodal is optional and only eligible when
// image content is present.
type BackendSet struct {
	Local      *BoundBackend
	Remote     *BoundBackend
	Multimodal *BoundBackend
}
