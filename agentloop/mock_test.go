package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperfocus-ai/hyperfocus/llmrouter"
)

// scriptedBackend is a ChatBackend test double. Each call consumes the
// next handler in the script; running past the end is an error.
type scriptedBackend struct {
	name   string
	script []func(req llmrouter.Request) (*llmrouter.AssembledResponse, error)

	mu       sync.Mutex
	step     int
	requests []llmrouter.Request
	contexts []context.Context
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.AssembledResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.contexts = append(b.contexts, ctx)
	if b.step >= len(b.script) {
		b.mu.Unlock()
		return nil, fmt.Errorf("scripted backend %s: no handler for call %d", b.name, b.step+1)
	}
	handler := b.script[b.step]
	b.step++
	b.mu.Unlock()
	return handler(req)
}

func (b *scriptedBackend) Stream(ctx context.Context, req llmrouter.Request) (<-chan llmrouter.StreamEvent, error) {
	resp, err := b.Complete(ctx, req)
	if err != nil {
		if resp == nil {
			return nil, err
		}
		// Partial stream: replay what arrived before the failure.
		ch := make(chan llmrouter.StreamEvent, 2)
		if resp.Text != "" {
			ch <- llmrouter.StreamEvent{Type: llmrouter.StreamTextDelta, Delta: resp.Text}
		}
		ch <- llmrouter.StreamEvent{Type: llmrouter.StreamError, Err: err}
		close(ch)
		return ch, nil
	}
	ch := make(chan llmrouter.StreamEvent, len(resp.ToolCalls)+2)
	if resp.Text != "" {
		ch <- llmrouter.StreamEvent{Type: llmrouter.StreamTextDelta, Delta: resp.Text}
	}
	for i, tc := range resp.ToolCalls {
		ch <- llmrouter.StreamEvent{
			Type:           llmrouter.StreamToolCallDelta,
			Index:          i,
			ID:             tc.ID,
			Name:           tc.Name,
			ArgumentsDelta: tc.Arguments,
		}
	}
	ch <- llmrouter.StreamEvent{Type: llmrouter.StreamFinish, FinishReason: resp.FinishReason}
	close(ch)
	return ch, nil
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

func (b *scriptedBackend) request(i int) llmrouter.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[i]
}

func (b *scriptedBackend) callContext(i int) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contexts[i]
}

// textReply scripts a plain text turn.
func textReply(text string) func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
	return func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
		return &llmrouter.AssembledResponse{Text: text, FinishReason: llmrouter.FinishStop}, nil
	}
}

// toolReply scripts a turn that requests the given tool calls.
func toolReply(calls ...llmrouter.ToolCall) func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
	return func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
		return &llmrouter.AssembledResponse{
			ToolCalls:    calls,
			FinishReason: llmrouter.FinishToolCalls,
		}, nil
	}
}

// failReply scripts a failing call.
func failReply(err error) func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
	return func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
		return nil, err
	}
}

// partialReply scripts a stream that emits text and then fails.
func partialReply(text string, err error) func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
	return func(llmrouter.Request) (*llmrouter.AssembledResponse, error) {
		return &llmrouter.AssembledResponse{Text: text}, err
	}
}

// singleBackendSet binds the scripted backend as the only general-purpose
// backend.
func singleBackendSet(b *scriptedBackend) llmrouter.BackendSet {
	return llmrouter.BackendSet{
		Local: &llmrouter.BoundBackend{
			Backend: llmrouter.Backend{ID: b.name, Model: "test-model"},
			Client:  b,
		},
	}
}

// fastRetryPolicy keeps retry delays out of test runtime.
func fastRetryPolicy() llmrouter.RetryPolicy {
	return llmrouter.RetryPolicy{
		MaxRetries:        1,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
	}
}
