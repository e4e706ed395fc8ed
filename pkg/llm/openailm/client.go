package openailm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"wallo/pkg/llm"
)

// Client is a wrapper around the official OpenAI Go SDK
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client.
// A missing API key is a configuration error and is rejected here, before
// any work can be dispatched against the client.
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key not configured for service '%s'", provider)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

// Complete implements llm.ChatClient
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	return c.complete(ctx, messages, nil)
}

// CompleteWithTools implements llm.ToolCapableClient
func (c *Client) CompleteWithTools(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Message, error) {
	return c.complete(ctx, messages, tools)
}

func (c *Client) complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: c.convertMessages(messages),
	}

	opts := []option.RequestOption{}

	// Handle unified "temperature" option (optional)
	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}

	// Handle unified "top_p" option (optional)
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}

	// Handle unified "max_tokens" option (mapped to max_completion_tokens for newer models)
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_completion_tokens", int(maxTok)))
	}

	if len(tools) > 0 {
		params.Tools = c.convertTools(tools)
	}

	debugger := llm.NewExchangeDebugger(ctx, c.provider, c.debugEnabled)
	defer debugger.Close()
	debugger.WriteRequest(messages)

	completion, err := c.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return llm.Message{}, fmt.Errorf("openai completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return llm.Message{}, fmt.Errorf("openai returned no choices")
	}

	choice := completion.Choices[0]
	msg := llm.NewAssistantMessage(choice.Message.Content)

	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	msg.Usage = &llm.LLMUsage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
		StopReason:       normalizeFinishReason(string(choice.FinishReason)),
	}

	debugger.WriteResponse(msg)
	llm.LogUsage(c.model, msg.Usage)

	return msg, nil
}

// convertMessages converts messages to the Chat Completions parameter format
func (c *Client) convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	var converted []openai.ChatCompletionMessageParamUnion

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			converted = append(converted, openai.SystemMessage(m.Content))

		case llm.RoleUser:
			converted = append(converted, openai.UserMessage(m.Content))

		case llm.RoleTool:
			converted = append(converted, openai.ToolMessage(m.Content, m.ToolCallID))

		case llm.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			// Echo previous tool calls so the tool-role turns that follow
			// stay linked to their originating request.
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					},
				})
			}
			converted = append(converted, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &assistant,
			})
		}
	}

	return converted
}

// convertTools converts tool metadata to the SDK tool parameter format
func (c *Client) convertTools(tools []llm.Tool) []openai.ChatCompletionToolUnionParam {
	var converted []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		converted = append(converted, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": t.Parameters(),
				"required":   t.RequiredParameters(),
			},
		}))
	}
	return converted
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "length":
		return llm.StopReasonLength
	case "tool_calls", "function_call":
		return llm.StopReasonToolCalls
	default:
		return llm.StopReasonStop
	}
}
