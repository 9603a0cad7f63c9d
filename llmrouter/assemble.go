package llmrouter

import (
	"io"
	"sort"
	"strings"
)

// flusher is implemented by sinks that buffer output.
type flusher interface {
	Flush() error
}

// toolCallDraft accumulates one tool call from indexed deltas.
type toolCallDraft struct {
	id   string
	name string
	args strings.Builder
}

// Assemble consumes the ordered event stream from one backend call,
// forwards text deltas to sink as they arrive, and materializes exactly
// one AssembledResponse.
//
// Tool-call deltas are keyed by index. ID and function name are
// set-or-kept; argument fragments are strictly appended so that the final
// argument string equals the exact concatenation of all fragments in
// arrival order, defaulting to "{}" when none arrive. A stream with zero
// events fails with EmptyStreamError; a stream that ends without a
// terminal event fails with IncompleteStreamError. On every exit path the
// channel is drained to completion and the sink is flushed: a
// partially-consumed stream is never abandoned mid-flight.
func Assemble(events <-chan StreamEvent, sink io.Writer) (*AssembledResponse, error) {
	var (
		text      strings.Builder
		drafts    = map[int]*toolCallDraft{}
		finished  bool
		sawEvent  bool
		finish    FinishReason
		usage     Usage
		streamErr error
	)

	defer func() {
		for range events {
			// Drain remaining events so the producer can finish.
		}
		if f, ok := sink.(flusher); ok {
			_ = f.Flush()
		}
	}()

	for event := range events {
		sawEvent = true
		switch event.Type {
		case StreamTextDelta:
			text.WriteString(event.Delta)
			if sink != nil {
				_, _ = io.WriteString(sink, event.Delta)
			}
		case StreamToolCallDelta:
			draft := drafts[event.Index]
			if draft == nil {
				draft = &toolCallDraft{}
				drafts[event.Index] = draft
			}
			if event.ID != "" {
				draft.id = event.ID
			}
			if event.Name != "" {
				draft.name = event.Name
			}
			draft.args.WriteString(event.ArgumentsDelta)
		case StreamFinish:
			finished = true
			finish = event.FinishReason
			if event.Usage != nil {
				usage = *event.Usage
			}
		case StreamError:
			if streamErr == nil {
				streamErr = event.Err
			}
		}
	}

	if streamErr != nil {
		return nil, streamErr
	}
	if !sawEvent {
		return nil, &EmptyStreamError{RouterError{Message: "stream produced no events"}}
	}
	if !finished {
		return nil, &IncompleteStreamError{RouterError{Message: "stream ended without a terminal event"}}
	}

	indexes := make([]int, 0, len(drafts))
	for idx := range drafts {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	toolCalls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		draft := drafts[idx]
		args := draft.args.String()
		if args == "" {
			args = "{}"
		}
		toolCalls = append(toolCalls, ToolCall{ID: draft.id, Name: draft.name, Arguments: args})
	}

	resp := &AssembledResponse{
		Text:         text.String(),
		FinishReason: finish,
		Usage:        usage,
	}
	if len(toolCalls) > 0 {
		resp.ToolCalls = toolCalls
	}
	return resp, nil
}
