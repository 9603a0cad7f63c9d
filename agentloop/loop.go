package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperfocus-ai/hyperfocus/llmrouter"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateAwaitingModel  SessionState = "awaiting_model"
	StateExecutingTools SessionState = "executing_tools"
	StateDone           SessionState = "done"
	StateAborted        SessionState = "aborted"
)

// AbortReason explains why a session aborted.
type AbortReason string

const (
	AbortIterationLimit AbortReason = "iteration_limit"
	AbortBackendError   AbortReason = "backend_error"
)

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	SystemPrompt    string   `json:"system_prompt,omitempty"`
	MaxIterations   int      `json:"max_iterations"`
	RouterThreshold int      `json:"router_threshold"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:   30,
		RouterThreshold: llmrouter.DefaultRouterThreshold,
	}
}

// Session drives the multi-turn tool-calling loop: project the context,
// pick a backend, stream and assemble one response, execute any tool
// calls, repeat. The permanent message log only ever grows; what each
// backend call sees is a projection of it.
type Session struct {
	id       string
	set      llmrouter.BackendSet
	registry *ToolRegistry
	meta     *MetadataStore
	emitter  *EventEmitter
	config   SessionConfig
	retry    llmrouter.RetryPolicy

	log         []llmrouter.Message
	state       SessionState
	abortReason AbortReason
	iteration   int
	mu          sync.Mutex
}

// NewSession creates a session over the given backends and tool registry.
func NewSession(set llmrouter.BackendSet, registry *ToolRegistry, config *SessionConfig) *Session {
	sessionID := uuid.New().String()

	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
		if cfg.MaxIterations <= 0 {
			cfg.MaxIterations = 30
		}
	}
	if registry == nil {
		registry = NewToolRegistry()
	}

	return &Session{
		id:       sessionID,
		set:      set,
		registry: registry,
		meta:     NewMetadataStore(),
		emitter:  NewEventEmitter(sessionID, 256),
		config:   cfg,
		retry:    llmrouter.DefaultRetryPolicy(),
		state:    StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SetRetryPolicy overrides the retry policy for backend calls.
func (s *Session) SetRetryPolicy(policy llmrouter.RetryPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = policy
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AbortReason returns why the session aborted, or "" if it did not.
func (s *Session) AbortReason() AbortReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortReason
}

// Iteration returns the number of backend calls made so far.
func (s *Session) Iteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iteration
}

// History returns a copy of the permanent message log.
func (s *Session) History() []llmrouter.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]llmrouter.Message, len(s.log))
	copy(h, s.log)
	return h
}

// Metadata returns the session's tool result metadata store.
func (s *Session) Metadata() *MetadataStore {
	return s.meta
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Close closes the session's event channel. Safe to call multiple times.
func (s *Session) Close() {
	s.emitter.Close()
}

// Run processes one user input through the loop and returns the model's
// final text response. Cancellation is honored between turns: an
// in-flight stream always runs to completion before the context is
// checked again.
func (s *Session) Run(ctx context.Context, userInput string) (string, error) {
	s.mu.Lock()
	s.log = append(s.log, llmrouter.UserMessage(userInput))
	s.mu.Unlock()

	s.emitter.Emit(EventSessionStart, map[string]interface{}{
		"input_length": len(userInput),
	})

	for {
		select {
		case <-ctx.Done():
			s.abort(AbortBackendError, ctx.Err().Error())
			return "", ctx.Err()
		default:
		}

		s.mu.Lock()
		s.iteration++
		iteration := s.iteration
		limit := s.config.MaxIterations
		s.mu.Unlock()

		if iteration > limit {
			err := &IterationLimitError{Limit: limit}
			s.emitter.Emit(EventIterationLimit, map[string]interface{}{
				"limit": limit,
			})
			s.abort(AbortIterationLimit, err.Error())
			return "", err
		}

		response, err := s.invokeModel(ctx, iteration)
		if err != nil {
			s.abort(AbortBackendError, err.Error())
			return "", &BackendAbortError{Cause: err}
		}

		s.mu.Lock()
		s.log = append(s.log, response.ToMessage())
		s.mu.Unlock()

		s.emitter.Emit(EventAssistantTextEnd, map[string]interface{}{
			"text":       response.Text,
			"tool_calls": len(response.ToolCalls),
		})

		if len(response.ToolCalls) == 0 {
			s.mu.Lock()
			s.state = StateDone
			s.mu.Unlock()
			s.emitter.Emit(EventSessionEnd, map[string]interface{}{
				"state": string(StateDone),
			})
			return response.Text, nil
		}

		s.mu.Lock()
		s.state = StateExecutingTools
		s.mu.Unlock()

		results := s.executeToolCalls(ctx, response.ToolCalls, iteration)
		s.mu.Lock()
		s.log = append(s.log, results...)
		s.mu.Unlock()
	}
}

// invokeModel runs one backend call: project, select, stream, assemble.
// A retryable failure gets exactly one more attempt against the same
// backend before the error surfaces.
func (s *Session) invokeModel(ctx context.Context, iteration int) (*llmrouter.AssembledResponse, error) {
	s.mu.Lock()
	s.state = StateAwaitingModel
	logCopy := make([]llmrouter.Message, len(s.log))
	copy(logCopy, s.log)
	cfg := s.config
	retry := s.retry
	s.mu.Unlock()

	projected := ProjectContext(logCopy, s.meta, iteration)
	s.emitStubbed(logCopy, projected)

	messages := projected
	if cfg.SystemPrompt != "" {
		messages = append([]llmrouter.Message{llmrouter.SystemMessage(cfg.SystemPrompt)}, projected...)
	}

	sel, err := llmrouter.Select(messages, s.set, cfg.RouterThreshold)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(EventBackendSelected, map[string]interface{}{
		"backend":      sel.Backend.ID,
		"model":        sel.Backend.Model,
		"reason":       string(sel.Reason),
		"total_length": sel.TotalLength,
		"iteration":    iteration,
	})

	request := llmrouter.Request{
		Model:       sel.Backend.Model,
		Messages:    messages,
		Tools:       s.registry.Definitions(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	// The model call runs on a non-cancelable context: cancellation is
	// observed between turns in Run, and an in-flight stream completes
	// rather than tearing down mid-response.
	callCtx := context.WithoutCancel(ctx)

	var stale bool
	return llmrouter.Retry(callCtx, retry, func(ctx context.Context) (*llmrouter.AssembledResponse, error) {
		if stale {
			// The previous attempt streamed partial text before failing;
			// tell the host to drop it before this attempt replays the turn.
			s.emitter.Emit(EventAssistantTextReset, nil)
			stale = false
		}
		sink := &meteredWriter{w: s.emitter.TextSink()}
		events, err := sel.Backend.Client.Stream(ctx, request)
		if err != nil {
			return nil, err
		}
		resp, err := llmrouter.Assemble(events, sink)
		if err != nil && sink.n > 0 {
			stale = true
		}
		return resp, err
	})
}

// meteredWriter counts bytes passed through to the underlying sink.
type meteredWriter struct {
	w io.Writer
	n int
}

func (m *meteredWriter) Write(p []byte) (int, error) {
	m.n += len(p)
	return m.w.Write(p)
}

// emitStubbed reports which tool results the projection replaced.
func (s *Session) emitStubbed(log, projected []llmrouter.Message) {
	for i := range log {
		if log[i].Role != llmrouter.RoleTool {
			continue
		}
		if toolResultContent(log[i]) != toolResultContent(projected[i]) {
			s.emitter.Emit(EventResultStubbed, map[string]interface{}{
				"tool_call_id": log[i].ToolCallID,
			})
		}
	}
}

// toolResultContent extracts the result content from a tool message.
func toolResultContent(msg llmrouter.Message) string {
	for _, part := range msg.Content {
		if part.Kind == llmrouter.ContentToolResult && part.ToolResult != nil {
			return part.ToolResult.Content
		}
	}
	return ""
}

// executeToolCalls runs sibling tool calls concurrently and returns their
// result messages in request order. Each result's metadata is recorded at
// the iteration that produced it.
func (s *Session) executeToolCalls(ctx context.Context, toolCalls []llmrouter.ToolCall, iteration int) []llmrouter.Message {
	results := make([]llmrouter.Message, len(toolCalls))
	if len(toolCalls) == 1 {
		results[0] = s.executeSingleTool(ctx, toolCalls[0], iteration)
		return results
	}

	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func(idx int, call llmrouter.ToolCall) {
			defer wg.Done()
			results[idx] = s.executeSingleTool(ctx, call, iteration)
		}(i, tc)
	}
	wg.Wait()
	return results
}

// executeSingleTool handles one tool call end to end: lookup, execute,
// record metadata, emit, and convert to a tool result message. Failures
// become error results; they never abort the turn.
func (s *Session) executeSingleTool(ctx context.Context, tc llmrouter.ToolCall, iteration int) llmrouter.Message {
	s.emitter.Emit(EventToolCallStart, map[string]interface{}{
		"tool_name": tc.Name,
		"call_id":   tc.ID,
	})

	registered := s.registry.Get(tc.Name)
	if registered == nil {
		return s.failToolCall(tc, iteration, fmt.Errorf("unknown tool: %s", tc.Name))
	}

	outcome, err := registered.Executor(ctx, json.RawMessage(tc.Arguments))
	if err != nil {
		return s.failToolCall(tc, iteration, err)
	}

	// Errors in Record mean a duplicate call ID from the backend; keep the
	// first recording.
	_ = s.meta.Record(tc.ID, ToolResultMetadata{
		FunctionName:       tc.Name,
		IncludeInContext:   outcome.IncludeInContext,
		StubMessage:        outcome.StubMessage,
		ContextGuidance:    outcome.ContextGuidance,
		CreatedAtIteration: iteration,
	})

	s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
		"call_id":            tc.ID,
		"output_length":      len(outcome.Data),
		"include_in_context": outcome.IncludeInContext,
	})

	return llmrouter.ToolResultMessage(tc.ID, outcome.Data, false)
}

// failToolCall records an error result. Error results always stay in
// context: the model has to see what went wrong to correct course.
func (s *Session) failToolCall(tc llmrouter.ToolCall, iteration int, cause error) llmrouter.Message {
	toolErr := &ToolExecutionError{ToolName: tc.Name, CallID: tc.ID, Cause: cause}
	content := fmt.Sprintf("Tool error (%s): %v", tc.Name, cause)

	_ = s.meta.Record(tc.ID, ToolResultMetadata{
		FunctionName:       tc.Name,
		IncludeInContext:   true,
		CreatedAtIteration: iteration,
	})

	s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
		"call_id": tc.ID,
		"error":   toolErr.Error(),
	})

	return llmrouter.ToolResultMessage(tc.ID, content, true)
}

func (s *Session) abort(reason AbortReason, detail string) {
	s.mu.Lock()
	s.state = StateAborted
	s.abortReason = reason
	s.mu.Unlock()

	s.emitter.Emit(EventError, map[string]interface{}{
		"reason": string(reason),
		"error":  detail,
	})
	s.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"state":  string(StateAborted),
		"reason": string(reason),
	})
}
