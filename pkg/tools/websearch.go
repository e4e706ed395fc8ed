package tools

import (
	"context"
	"fmt"
	"strings"
)

// WebSearchTool is a placeholder search capability used to exercise the
// tool-calling path while offline. It never performs network I/O.
type WebSearchTool struct{}

// NewWebSearchTool 建立離線的 websearch 工具
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{}
}

func (t *WebSearchTool) Name() string {
	return "websearch"
}

func (t *WebSearchTool) Description() string {
	return "Search the web for a query and return a short list of results. Currently offline; results are placeholders."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "The search query text.",
		},
	}
}

func (t *WebSearchTool) RequiredParameters() []string {
	return []string{"query"}
}

// Execute implements api.Tool
func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "No query provided.", nil
	}
	return fmt.Sprintf("Dummy websearch results (offline)\n- Query: %s\n- Result 1: https://example.com/docs\n- Result 2: https://example.com/tutorial\n", query), nil
}
