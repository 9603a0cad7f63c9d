package agentloop

import (
	"fmt"

	"github.com/hyperfocus-ai/hyperfocus/llmrouter"
)

// stubGraceIterations is how many iterations a tool result marked
// include_in_context=false stays visible before projection stubs it. The
// model needs the full data for the iteration that reacts to it.
const stubGraceIterations = 2

// DefaultStubMessage is the replacement text for a stubbed tool result
// when the tool supplied no stub of its own.
func DefaultStubMessage(functionName string) string {
	return fmt.Sprintf("[Result from %s excluded from context - processed in previous iteration]", functionName)
}

// ProjectContext derives the message list for the next backend call from
// the permanent log. The log itself is never mutated: stubbing happens in
// the returned view only, so a result stubbed at one iteration is still
// fully available to later projections that want it.
//
// A tool result is stubbed if and only if its metadata says
// include_in_context=false AND it is at least stubGraceIterations old.
// Results without metadata, included results, and results still inside the
// grace window pass through untouched. Context guidance, when present, is
// appended to the stub as its own paragraph.
func ProjectContext(log []llmrouter.Message, store *MetadataStore, iteration int) []llmrouter.Message {
	projected := make([]llmrouter.Message, len(log))
	for i, msg := range log {
		if msg.Role != llmrouter.RoleTool || msg.ToolCallID == "" {
			projected[i] = msg
			continue
		}
		md, ok := store.Get(msg.ToolCallID)
		if !ok || !shouldStub(md, iteration) {
			projected[i] = msg
			continue
		}
		stub := md.StubMessage
		if stub == "" {
			stub = DefaultStubMessage(md.FunctionName)
		}
		if md.ContextGuidance != "" {
			stub += "\n\n" + md.ContextGuidance
		}
		projected[i] = llmrouter.ToolResultMessage(msg.ToolCallID, stub, false)
	}
	return projected
}

func shouldStub(md ToolResultMetadata, iteration int) bool {
	if md.IncludeInContext {
		return false
	}
	return iteration-md.CreatedAtIteration >= stubGraceIterations
}
