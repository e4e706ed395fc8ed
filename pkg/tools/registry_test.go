package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(NewWebSearchTool())

	tool, ok := reg.Get("websearch")
	require.True(t, ok)
	assert.Equal(t, "websearch", tool.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(NewWebSearchTool())
	reg.Unregister("websearch")

	_, ok := reg.Get("websearch")
	assert.False(t, ok)
	assert.Empty(t, reg.GetAll())
}

func TestWebSearchExecute(t *testing.T) {
	tool := NewWebSearchTool()

	out, err := tool.Execute(context.Background(), map[string]any{"query": "go generics"})
	require.NoError(t, err)
	assert.Contains(t, out, "go generics")
	assert.Contains(t, out, "https://example.com/docs")
}

func TestWebSearchExecuteEmptyQuery(t *testing.T) {
	tool := NewWebSearchTool()

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "No query provided.", out)
}

func TestWebSearchSchema(t *testing.T) {
	tool := NewWebSearchTool()
	params := tool.Parameters()
	require.Contains(t, params, "query")
	assert.Equal(t, []string{"query"}, tool.RequiredParameters())
}
