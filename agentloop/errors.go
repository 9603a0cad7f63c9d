package agentloop

import "fmt"

// ToolExecutionError wraps a failure from one tool executor. The loop
// captures it as an error tool result instead of failing the turn.
type ToolExecutionError struct {
	ToolName string
	CallID   string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s): %v", e.ToolName, e.CallID, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// PageTaskError wraps a failure from processing one page of a paged
// sub-task. Other pages are unaffected.
type PageTaskError struct {
	PageIndex int
	PageCount int
	Cause     error
}

func (e *PageTaskError) Error() string {
	return fmt.Sprintf("page %d of %d: %v", e.PageIndex+1, e.PageCount, e.Cause)
}

func (e *PageTaskError) Unwrap() error {
	return e.Cause
}

// IterationLimitError means the loop reached its iteration cap without the
// model producing a final text-only response.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("iteration limit reached (%d)", e.Limit)
}

// BackendAbortError means a backend call failed even after retry and the
// session aborted.
type BackendAbortError struct {
	Cause error
}

func (e *BackendAbortError) Error() string {
	return fmt.Sprintf("backend call failed after retry: %v", e.Cause)
}

func (e *BackendAbortError) Unwrap() error {
	return e.Cause
}
