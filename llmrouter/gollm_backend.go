package llmrouter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmBackend adapts a gollm.LLM instance to the ChatBackend interface.
// It serves first-party cloud providers (openai, anthropic) addressed by
// provider name rather than a custom endpoint; the general path for the
// configured backend triples is OpenAIBackend.
type GollmBackend struct {
	id  string
	llm gollm.LLM
}

// NewGollmBackend creates a gollm-backed ChatBackend for the given
// provider. If apiKey is empty, gollm reads it from the environment.
func NewGollmBackend(id, provider, model, apiKey string) (*GollmBackend, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxRetries(0), // retries belong to the caller's policy
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, &ConfigurationError{RouterError{Message: "creating gollm client", Cause: err}}
	}
	return &GollmBackend{id: id, llm: llm}, nil
}

// NewGollmBackendFromLLM wraps an existing gollm.LLM instance.
func NewGollmBackendFromLLM(id string, llm gollm.LLM) *GollmBackend {
	return &GollmBackend{id: id, llm: llm}
}

// Name returns the backend identifier.
func (b *GollmBackend) Name() string { return b.id }

// Complete sends a blocking request and returns the full response.
func (b *GollmBackend) Complete(ctx context.Context, req Request) (*AssembledResponse, error) {
	prompt, err := b.translateRequest(req)
	if err != nil {
		return nil, err
	}

	if req.Model != "" {
		b.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		b.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		b.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := b.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, b.translateError(err)
	}
	return b.buildResponse(req, text), nil
}

// Stream emulates streaming over one Complete call: the full text surfaces
// as a single delta followed by tool-call deltas and a terminal event, so
// consumers see a well-formed stream regardless of provider support.
func (b *GollmBackend) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	events := make(chan StreamEvent, 8)
	go func() {
		defer close(events)
		resp, err := b.Complete(ctx, req)
		if err != nil {
			events <- StreamEvent{Type: StreamError, Err: err}
			return
		}
		if resp.Text != "" {
			events <- StreamEvent{Type: StreamTextDelta, Delta: resp.Text}
		}
		for i, tc := range resp.ToolCalls {
			events <- StreamEvent{
				Type:           StreamToolCallDelta,
				Index:          i,
				ID:             tc.ID,
				Name:           tc.Name,
				ArgumentsDelta: tc.Arguments,
			}
		}
		events <- StreamEvent{Type: StreamFinish, FinishReason: resp.FinishReason, Usage: &resp.Usage}
	}()
	return events, nil
}

// translateRequest flattens the message log into a gollm prompt. gollm
// takes a single prompt string, so assistant and tool turns are inlined as
// labeled context lines.
func (b *GollmBackend) translateRequest(req Request) (*gollm.Prompt, error) {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			if msg.HasImage() {
				return nil, &ConfigurationError{RouterError{
					Message: "gollm backend does not accept image content",
				}}
			}
			userParts = append(userParts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				userParts = append(userParts, "[Assistant]: "+text)
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					prefix := "[Tool Result]"
					if part.ToolResult.IsError {
						prefix = "[Tool Error]"
					}
					userParts = append(userParts, prefix+": "+part.ToolResult.Content)
				}
			}
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...), nil
}

// buildResponse constructs an AssembledResponse from generated text,
// extracting any tool calls gollm embedded in the text.
func (b *GollmBackend) buildResponse(req Request, text string) *AssembledResponse {
	toolCalls := parseEmbeddedToolCalls(text)

	finish := FinishStop
	if len(toolCalls) > 0 {
		finish = FinishToolCalls
		text = stripToolCallJSON(text)
	}

	return &AssembledResponse{
		Text:         text,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: Usage{
			// gollm does not expose usage; estimate at four chars per token.
			InputTokens:  estimateTokens(req),
			OutputTokens: len(text) / 4,
			TotalTokens:  estimateTokens(req) + len(text)/4,
		},
	}
}

func (b *GollmBackend) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	status := 0
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"):
		status = 401
	case strings.Contains(msg, "403"), strings.Contains(msg, "forbidden"):
		status = 403
	case strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		status = 404
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		status = 429
	case strings.Contains(msg, "context length"), strings.Contains(msg, "too many tokens"):
		status = 413
	case strings.Contains(msg, "500"), strings.Contains(msg, "internal server"):
		status = 500
	}
	return NewBackendError(b.id, status, err)
}

// parseEmbeddedToolCalls extracts tool calls gollm returns as JSON inside
// the response text.
func parseEmbeddedToolCalls(text string) []ToolCall {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		args := string(rc.Arguments)
		if args == "" {
			args = "{}"
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: args,
		})
	}
	return calls
}

func stripToolCallJSON(text string) string {
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += msg.TextLength() / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
