package llmrouter

import (
	"errors"
	"strings"
	"testing"
)

func streamOf(events ...StreamEvent) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func finishEvent(reason FinishReason) StreamEvent {
	return StreamEvent{Type: StreamFinish, FinishReason: reason}
}

func TestAssembleTextOnly(t *testing.T) {
	var sink strings.Builder
	resp, err := Assemble(streamOf(
		StreamEvent{Type: StreamTextDelta, Delta: "Hello, "},
		StreamEvent{Type: StreamTextDelta, Delta: "world"},
		finishEvent(FinishStop),
	), &sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", resp.Text)
	}
	if sink.String() != "Hello, world" {
		t.Errorf("sink got %q", sink.String())
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("expected finish reason %q, got %q", FinishStop, resp.FinishReason)
	}
}

func TestAssembleToolCallFromFragments(t *testing.T) {
	resp, err := Assemble(streamOf(
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ID: "call_abc", Name: "read_file"},
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ArgumentsDelta: `{"pa`},
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ArgumentsDelta: `th":`},
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ArgumentsDelta: `1}`},
		finishEvent(FinishToolCalls),
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Name != "read_file" {
		t.Errorf("unexpected identity: %+v", tc)
	}
	if tc.Arguments != `{"path":1}` {
		t.Errorf("expected arguments %q, got %q", `{"path":1}`, tc.Arguments)
	}
}

func TestAssembleArgumentsNeverOverwritten(t *testing.T) {
	// A later fragment that repeats the ID and name must not reset the
	// accumulated argument text.
	resp, err := Assemble(streamOf(
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ID: "call_1", Name: "search", ArgumentsDelta: `{"q":`},
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ID: "call_1", Name: "search", ArgumentsDelta: `"go"}`},
		finishEvent(FinishToolCalls),
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ToolCalls[0].Arguments != `{"q":"go"}` {
		t.Errorf("expected arguments %q, got %q", `{"q":"go"}`, resp.ToolCalls[0].Arguments)
	}
}

func TestAssembleSplitInvariance(t *testing.T) {
	// The assembled arguments depend only on fragment concatenation, not
	// on where the backend happened to split them.
	full := `{"path":"/tmp/a.txt","offset":42,"limit":100}`
	for _, chunk := range []int{1, 3, 7, len(full)} {
		events := []StreamEvent{{Type: StreamToolCallDelta, Index: 0, ID: "c", Name: "read_file"}}
		for i := 0; i < len(full); i += chunk {
			end := i + chunk
			if end > len(full) {
				end = len(full)
			}
			events = append(events, StreamEvent{Type: StreamToolCallDelta, Index: 0, ArgumentsDelta: full[i:end]})
		}
		events = append(events, finishEvent(FinishToolCalls))

		resp, err := Assemble(streamOf(events...), nil)
		if err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", chunk, err)
		}
		if resp.ToolCalls[0].Arguments != full {
			t.Errorf("chunk %d: expected %q, got %q", chunk, full, resp.ToolCalls[0].Arguments)
		}
	}
}

func TestAssembleMultipleToolCallsByIndex(t *testing.T) {
	// Interleaved deltas for two calls land in the right accumulators and
	// come back ordered by index.
	resp, err := Assemble(streamOf(
		StreamEvent{Type: StreamToolCallDelta, Index: 1, ID: "call_b", Name: "write_file"},
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ID: "call_a", Name: "read_file"},
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ArgumentsDelta: `{"path":"a"}`},
		StreamEvent{Type: StreamToolCallDelta, Index: 1, ArgumentsDelta: `{"path":"b"}`},
		finishEvent(FinishToolCalls),
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_a" || resp.ToolCalls[1].ID != "call_b" {
		t.Errorf("tool calls out of order: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments != `{"path":"a"}` || resp.ToolCalls[1].Arguments != `{"path":"b"}` {
		t.Errorf("arguments crossed accumulators: %+v", resp.ToolCalls)
	}
}

func TestAssembleEmptyArgumentsDefaultToObject(t *testing.T) {
	resp, err := Assemble(streamOf(
		StreamEvent{Type: StreamToolCallDelta, Index: 0, ID: "call_1", Name: "list_files"},
		finishEvent(FinishToolCalls),
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ToolCalls[0].Arguments != "{}" {
		t.Errorf("expected empty arguments to default to {}, got %q", resp.ToolCalls[0].Arguments)
	}
}

func TestAssembleEmptyStream(t *testing.T) {
	_, err := Assemble(streamOf(), nil)
	if err == nil {
		t.Fatal("expected error for empty stream")
	}
	var empty *EmptyStreamError
	if !errors.As(err, &empty) {
		t.Errorf("expected *EmptyStreamError, got %T", err)
	}
}

func TestAssembleIncompleteStream(t *testing.T) {
	_, err := Assemble(streamOf(
		StreamEvent{Type: StreamTextDelta, Delta: "partial"},
	), nil)
	if err == nil {
		t.Fatal("expected error for incomplete stream")
	}
	var incomplete *IncompleteStreamError
	if !errors.As(err, &incomplete) {
		t.Errorf("expected *IncompleteStreamError, got %T", err)
	}
}

func TestAssembleStreamErrorPropagates(t *testing.T) {
	cause := errors.New("connection reset")
	_, err := Assemble(streamOf(
		StreamEvent{Type: StreamTextDelta, Delta: "partial"},
		StreamEvent{Type: StreamError, Err: cause},
	), nil)
	if !errors.Is(err, cause) {
		t.Errorf("expected stream error to propagate, got %v", err)
	}
}

func TestAssembleDrainsChannelOnError(t *testing.T) {
	// The producer goroutine must be able to run to completion even when
	// the stream fails early.
	ch := make(chan StreamEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		ch <- StreamEvent{Type: StreamError, Err: errors.New("boom")}
		for i := 0; i < 100; i++ {
			ch <- StreamEvent{Type: StreamTextDelta, Delta: "x"}
		}
	}()

	_, err := Assemble(ch, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	<-done
}

func TestAssembleUsage(t *testing.T) {
	resp, err := Assemble(streamOf(
		StreamEvent{Type: StreamTextDelta, Delta: "ok"},
		StreamEvent{Type: StreamFinish, FinishReason: FinishStop, Usage: &Usage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}},
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected usage total 15, got %d", resp.Usage.TotalTokens)
	}
}

func TestAssembledResponseToMessage(t *testing.T) {
	resp := &AssembledResponse{
		Text: "running the tool",
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "read_file", Arguments: `{"path":"a"}`},
		},
		FinishReason: FinishToolCalls,
	}
	msg := resp.ToMessage()
	if msg.Role != RoleAssistant {
		t.Errorf("expected assistant role, got %q", msg.Role)
	}
	if msg.TextContent() != "running the tool" {
		t.Errorf("expected text carried over, got %q", msg.TextContent())
	}
	calls := msg.ToolCalls()
	if len(calls) != 1 || calls[0].ID != "call_1" {
		t.Errorf("expected tool call carried over, got %+v", calls)
	}
}
