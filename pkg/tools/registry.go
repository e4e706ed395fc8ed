package tools

import (
	"sync"

	"wallo/pkg/api"
)

// ToolRegistry acts as a central inventory for all tools available to the AI.
type ToolRegistry struct {
	mu    sync.RWMutex        // Protects concurrent access to the tools map
	tools map[string]api.Tool // Internal map of tool name to implementation
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]api.Tool),
	}
}

// Register adds a tool to the registry
func (tr *ToolRegistry) Register(tool api.Tool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry
func (tr *ToolRegistry) Unregister(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.tools, name)
}

// Get retrieves a tool by name
func (tr *ToolRegistry) Get(name string) (api.Tool, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tool, ok := tr.tools[name]
	return tool, ok
}

// GetAll returns all registered tools
func (tr *ToolRegistry) GetAll() []api.Tool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tools := make([]api.Tool, 0, len(tr.tools))
	for _, tool := range tr.tools {
		tools = append(tools, tool)
	}
	return tools
}
