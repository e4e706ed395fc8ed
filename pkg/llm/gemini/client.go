package gemini

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"

	"wallo/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	debugEnabled bool
}

// NewGeminiClient creates a Gemini client with a single model and API key.
// A missing API key is rejected at construction time.
func NewGeminiClient(ctx context.Context, apiKey string, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key not configured for service 'gemini'")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

// SetDebug toggles raw exchange dumps
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "overloaded")
}

// Complete implements llm.ChatClient
func (g *GeminiClient) Complete(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	return g.complete(ctx, messages, nil)
}

// CompleteWithTools implements llm.ToolCapableClient
func (g *GeminiClient) CompleteWithTools(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Message, error) {
	return g.complete(ctx, messages, tools)
}

func (g *GeminiClient) complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Message, error) {
	contents, systemInstruction := g.convertMessages(messages)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             g.convertTools(tools),
	}

	debugger := llm.NewExchangeDebugger(ctx, "gemini", g.debugEnabled)
	defer debugger.Close()
	debugger.WriteRequest(messages)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return llm.Message{}, fmt.Errorf("gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.Message{}, fmt.Errorf("gemini returned no candidates")
	}

	candidate := resp.Candidates[0]

	var text strings.Builder
	var toolCalls []llm.ToolCall
	for _, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			argsB, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				argsB = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				// Gemini does not always assign call IDs; synthesize one so
				// tool-result turns can still be linked back.
				id = fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, len(toolCalls))
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Function: llm.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(argsB),
				},
			})
		}
	}

	msg := llm.NewAssistantMessage(text.String())
	msg.ToolCalls = toolCalls

	if resp.UsageMetadata != nil {
		u := resp.UsageMetadata
		msg.Usage = &llm.LLMUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
			StopReason:       normalizeFinishReason(candidate.FinishReason, len(toolCalls)),
		}
		llm.LogUsage(g.model, msg.Usage)
	}

	debugger.WriteResponse(msg)

	return msg, nil
}

// convertMessages converts message list to GenAI format
func (g *GeminiClient) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			// System role as SystemInstruction
			if msg.Content != "" {
				systemInstruction = &genai.Content{
					Parts: []*genai.Part{{Text: msg.Content}},
				}
			}
			continue
		}

		if msg.Role == llm.RoleTool {
			// Tool results are part of user role in Gemini
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{
					{
						FunctionResponse: &genai.FunctionResponse{
							ID:       msg.ToolCallID,
							Name:     msg.ToolName,
							Response: map[string]any{"result": msg.Content},
						},
					},
				},
			})
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		// Gemini requires echoing previous FunctionCalls before their responses
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			json.Unmarshal([]byte(tc.Function.Arguments), &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				},
			})
		}

		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}

		if len(parts) == 0 {
			continue
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: parts,
		})
	}

	return contents, systemInstruction
}

// convertTools converts tool metadata to GenAI function declarations
func (g *GeminiClient) convertTools(tools []llm.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		fd := &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
		}
		params := map[string]any{
			"type":       "object",
			"properties": t.Parameters(),
			"required":   t.RequiredParameters(),
		}
		schemaB, err := json.Marshal(params)
		if err == nil {
			var schema genai.Schema
			if err := json.Unmarshal(schemaB, &schema); err == nil {
				fd.Parameters = &schema
			}
		}
		fds = append(fds, fd)
	}

	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func normalizeFinishReason(reason genai.FinishReason, toolCallCount int) string {
	if toolCallCount > 0 {
		return llm.StopReasonToolCalls
	}
	if reason == genai.FinishReasonMaxTokens {
		return llm.StopReasonLength
	}
	return llm.StopReasonStop
}
