package agentloop

import "fmt"

// taskExecutorSystemPrompt frames page-level sub-task calls. Pages are
// intermediate material, so the executor is told to stay terse.
const taskExecutorSystemPrompt = "You are a task executor. Process the data according to the user's instructions. Provide clear, concise and terse results, intended to be processed further."

// PageBreakSeparator joins per-page results under concatenate aggregation.
const PageBreakSeparator = "\n\n--- Page Break ---\n\n"

// taskUserPrompt builds the user message for one isolated task call.
func taskUserPrompt(task, data string) string {
	return fmt.Sprintf("%s\n\nData to process:\n%s", task, data)
}

// pageTaskPrompt annotates the task with the page position so the model
// knows it is seeing a slice of a larger whole.
func pageTaskPrompt(task string, pageIndex, pageCount int) string {
	return fmt.Sprintf("%s\n\n[Processing page %d of %d]", task, pageIndex+1, pageCount)
}

// summarizePrompt builds the synthesis task for summarize aggregation. The
// combined page results travel as the data payload of a regular task call.
func summarizePrompt(task string) string {
	return fmt.Sprintf("The following are results from processing multiple pages of data for this task:\n%s\n\nPlease synthesize these results into a single, cohesive response.", task)
}
