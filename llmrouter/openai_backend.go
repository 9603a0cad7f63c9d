package llmrouter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend speaks the OpenAI chat-completion wire format against any
// compatible endpoint: a local llama.cpp or vLLM host, a cloud provider,
// or a proxy. All three configured backends use this client; only the
// base URL and model differ.
type OpenAIBackend struct {
	backend Backend
	client  *openai.Client
}

// NewOpenAIBackend creates a client for the given backend descriptor.
func NewOpenAIBackend(backend Backend) *OpenAIBackend {
	cfg := openai.DefaultConfig(backend.APIKey)
	if backend.BaseURL != "" {
		cfg.BaseURL = backend.BaseURL
	}
	return &OpenAIBackend{
		backend: backend,
		client:  openai.NewClientWithConfig(cfg),
	}
}

// Name returns the backend identifier.
func (b *OpenAIBackend) Name() string { return b.backend.ID }

// Complete sends a blocking request and returns the full response.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (*AssembledResponse, error) {
	chatReq, err := b.translateRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, b.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewBackendError(b.backend.ID, 0, errors.New("response contained no choices"))
	}

	choice := resp.Choices[0]
	assembled := &AssembledResponse{
		Text:         choice.Message.Content,
		FinishReason: translateFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		assembled.ToolCalls = append(assembled.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return assembled, nil
}

// Stream sends a request and translates the provider's chunk stream into
// the StreamEvent vocabulary. Tool-call argument fragments pass through
// unmodified; reconstruction is the assembler's job.
func (b *OpenAIBackend) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	chatReq, err := b.translateRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := b.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, b.translateError(err)
	}

	events := make(chan StreamEvent, 64)
	go func() {
		defer close(events)
		defer stream.Close()

		var finish FinishReason
		var usage *Usage

		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				events <- StreamEvent{Type: StreamFinish, FinishReason: finish, Usage: usage}
				return
			}
			if err != nil {
				events <- StreamEvent{Type: StreamError, Err: b.translateError(err)}
				return
			}

			if chunk.Usage != nil {
				usage = &Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
					TotalTokens:  chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				events <- StreamEvent{Type: StreamTextDelta, Delta: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				events <- StreamEvent{
					Type:           StreamToolCallDelta,
					Index:          index,
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				}
			}
			if choice.FinishReason != "" {
				finish = translateFinishReason(choice.FinishReason)
			}
		}
	}()

	return events, nil
}

func (b *OpenAIBackend) translateRequest(req Request) (openai.ChatCompletionRequest, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
	}
	if chatReq.Model == "" {
		chatReq.Model = b.backend.Model
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	}

	for _, msg := range req.Messages {
		converted, err := b.translateMessage(msg)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		chatReq.Messages = append(chatReq.Messages, converted)
	}

	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return chatReq, nil
}

func (b *OpenAIBackend) translateMessage(msg Message) (openai.ChatCompletionMessage, error) {
	switch msg.Role {
	case RoleSystem:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: msg.TextContent(),
		}, nil

	case RoleUser:
		if !msg.HasImage() {
			return openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.TextContent(),
			}, nil
		}
		if !b.backend.SupportsImages {
			return openai.ChatCompletionMessage{}, &ConfigurationError{RouterError{
				Message: fmt.Sprintf("backend %q does not accept image content", b.backend.ID),
			}}
		}
		var parts []openai.ChatMessagePart
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case ContentImage:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURL(part.Image)},
				})
			}
		}
		return openai.ChatCompletionMessage{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		}, nil

	case RoleAssistant:
		converted := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: msg.TextContent(),
		}
		for _, tc := range msg.ToolCalls() {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return converted, nil

	case RoleTool:
		content := ""
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentToolResult:
				if part.ToolResult != nil {
					content += part.ToolResult.Content
				}
			case ContentText:
				content += part.Text
			}
		}
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    content,
			ToolCallID: msg.ToolCallID,
		}, nil

	default:
		return openai.ChatCompletionMessage{}, NewBackendError(b.backend.ID, 0,
			fmt.Errorf("unsupported message role %q", msg.Role))
	}
}

func (b *OpenAIBackend) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewBackendError(b.backend.ID, apiErr.HTTPStatusCode, err)
	}
	// Network failures and transport errors: retryable.
	return NewBackendError(b.backend.ID, 0, err)
}

func imageURL(img *ImageData) string {
	if img == nil {
		return ""
	}
	if img.URL != "" {
		return img.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", img.MediaType, base64.StdEncoding.EncodeToString(img.Data))
}

func translateFinishReason(reason openai.FinishReason) FinishReason {
	switch reason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return FinishToolCalls
	case openai.FinishReasonLength:
		return FinishLength
	default:
		return FinishStop
	}
}
