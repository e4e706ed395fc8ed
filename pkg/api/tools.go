package api

import (
	"context"

	"wallo/pkg/llm"
)

// Tool defines the structural interface for any capability that the AI
// can execute. It includes metadata for prompt injection (JSON Schema)
// and the execution logic itself.
type Tool interface {
	llm.Tool
	// Execute performs the actual tool logic using the provided argument map.
	// The result is always a plain string; failures are returned as errors
	// and converted to descriptive tool-result turns by the loop.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string)
	Get(name string) (Tool, bool)
	GetAll() []Tool
}
