package ollama

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"wallo/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// SetDebug toggles raw exchange dumps
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	var client *api.Client
	var err error

	// Custom Transport to ensure no timeouts are imposed by the client;
	// job deadlines come from the dispatcher context.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0,
	}

	customClient := &http.Client{
		Transport: transport,
		Timeout:   0,
	}

	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, customClient)
	} else {
		client, err = api.ClientFromEnvironment()
	}

	if err != nil {
		return nil, err
	}

	return &OllamaClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "server busy")
}

// Complete implements llm.ChatClient
func (o *OllamaClient) Complete(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	return o.complete(ctx, messages, nil)
}

// CompleteWithTools implements llm.ToolCapableClient
func (o *OllamaClient) CompleteWithTools(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Message, error) {
	return o.complete(ctx, messages, tools)
}

func (o *OllamaClient) complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Message, error) {
	apiMessages := o.convertMessages(messages)

	// Convert tools (using JSON conversion to work around SDK type mismatch issues)
	var ollamaTools []api.Tool
	if len(tools) > 0 {
		rawB, err := json.Marshal(llm.ToolSpecs(tools))
		if err != nil {
			return llm.Message{}, fmt.Errorf("failed to marshal tools: %w", err)
		}
		if err := json.Unmarshal(rawB, &ollamaTools); err != nil {
			return llm.Message{}, fmt.Errorf("failed to convert tools: %w", err)
		}
	}

	debugger := llm.NewExchangeDebugger(ctx, "ollama", o.debugEnabled)
	defer debugger.Close()
	debugger.WriteRequest(messages)

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: apiMessages,
		Options:  o.options,
		Tools:    ollamaTools,
		Stream:   &stream,
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	var usage *llm.LLMUsage

	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)

		for _, tc := range resp.Message.ToolCalls {
			argsB, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				argsB = []byte("{}")
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%s_%d", tc.Function.Name, len(toolCalls))
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   id,
				Name: tc.Function.Name,
				Function: llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: string(argsB),
				},
			})
		}

		if resp.Done {
			usage = &llm.LLMUsage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				StopReason:       resp.DoneReason,
			}
		}
		return nil
	})
	if err != nil {
		return llm.Message{}, fmt.Errorf("ollama completion failed: %w", err)
	}

	msg := llm.NewAssistantMessage(content.String())
	msg.ToolCalls = toolCalls
	msg.Usage = usage

	debugger.WriteResponse(msg)
	llm.LogUsage(o.model, usage)

	return msg, nil
}

// convertMessages converts messages to Ollama API format
func (o *OllamaClient) convertMessages(messages []llm.Message) []api.Message {
	var ollamaMsgs []api.Message

	for _, m := range messages {
		msg := api.Message{
			Role:    m.Role,
			Content: m.Content,
		}

		// Handle tool calls (if Assistant role and has ToolCalls)
		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			var ollamaToolCalls []api.ToolCall
			for _, tc := range m.ToolCalls {
				// Convert JSON string back to map
				var args api.ToolCallFunctionArguments
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					continue
				}
				ollamaToolCalls = append(ollamaToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: args,
					},
				})
			}
			msg.ToolCalls = ollamaToolCalls
		}

		ollamaMsgs = append(ollamaMsgs, msg)
	}

	return ollamaMsgs
}
