package agentloop

import (
	"io"
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart       EventKind = "session_start"
	EventSessionEnd         EventKind = "session_end"
	EventBackendSelected    EventKind = "backend_selected"
	EventAssistantTextDelta EventKind = "assistant_text_delta"
	EventAssistantTextReset EventKind = "assistant_text_reset"
	EventAssistantTextEnd   EventKind = "assistant_text_end"
	EventToolCallStart      EventKind = "tool_call_start"
	EventToolCallEnd        EventKind = "tool_call_end"
	EventResultStubbed      EventKind = "result_stubbed"
	EventPageStart          EventKind = "page_start"
	EventPageEnd            EventKind = "page_end"
	EventPageError          EventKind = "page_error"
	EventIterationLimit     EventKind = "iteration_limit"
	EventError              EventKind = "error"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers typed events to the host application via a channel.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit sends an event to the channel. If the emitter is closed, the event
// is silently dropped.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Channel full; drop event to avoid blocking the agent loop.
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// TextSink returns a sink that forwards streamed assistant text as
// assistant_text_delta events.
func (e *EventEmitter) TextSink() io.Writer {
	return &textSink{emitter: e}
}

type textSink struct {
	emitter *EventEmitter
}

func (s *textSink) Write(p []byte) (int, error) {
	if len(p) > 0 {
		s.emitter.Emit(EventAssistantTextDelta, map[string]interface{}{
			"delta": string(p),
		})
	}
	return len(p), nil
}
