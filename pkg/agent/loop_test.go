package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallo/pkg/llm"
	"wallo/pkg/tools"
)

// scriptedClient returns one canned assistant message per round.
// When the script runs out, the last entry repeats.
type scriptedClient struct {
	script []llm.Message
	calls  int
	err    error
}

func (c *scriptedClient) Complete(ctx context.Context, msgs []llm.Message) (llm.Message, error) {
	return c.CompleteWithTools(ctx, msgs, nil)
}

func (c *scriptedClient) CompleteWithTools(ctx context.Context, msgs []llm.Message, bound []llm.Tool) (llm.Message, error) {
	if c.err != nil {
		return llm.Message{}, c.err
	}
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	return c.script[idx], nil
}

func (c *scriptedClient) IsTransientError(err error) bool { return false }

type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (t *funcTool) Name() string                 { return t.name }
func (t *funcTool) Description() string          { return "test tool" }
func (t *funcTool) Parameters() map[string]any   { return map[string]any{} }
func (t *funcTool) RequiredParameters() []string { return nil }
func (t *funcTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

func assistantWithCall(name, args string) llm.Message {
	msg := llm.NewAssistantMessage("")
	msg.ToolCalls = []llm.ToolCall{{
		ID:       "call_1",
		Name:     name,
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}}
	return msg
}

func TestRunToolLoopNormalTermination(t *testing.T) {
	client := &scriptedClient{script: []llm.Message{
		llm.NewAssistantMessage("final answer"),
	}}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()

	answer, err := RunToolLoop(context.Background(), client, history, "hello", registry)
	require.NoError(t, err)
	assert.Equal(t, "final answer", answer)
	assert.Equal(t, 1, client.calls)

	// User turn and assistant turn folded back into the shared history.
	msgs := history.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
}

func TestRunToolLoopRoundLimit(t *testing.T) {
	// A model that always requests a tool call must be cut off after 6 rounds.
	client := &scriptedClient{script: []llm.Message{
		assistantWithCall("echo", `{"text":"hi"}`),
	}}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()
	registry.Register(&funcTool{name: "echo", fn: func(ctx context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("%v", args["text"]), nil
	}})

	answer, err := RunToolLoop(context.Background(), client, history, "go", registry)
	require.NoError(t, err)
	assert.Equal(t, 6, client.calls)
	// Round limit exhaustion is not an error: the last turn is a tool result.
	assert.Equal(t, "hi", answer)

	var assistantTurns, toolTurns int
	for _, msg := range history.GetMessages() {
		switch msg.Role {
		case llm.RoleAssistant:
			assistantTurns++
		case llm.RoleTool:
			toolTurns++
		}
	}
	assert.Equal(t, 6, assistantTurns)
	assert.GreaterOrEqual(t, toolTurns, 6)
}

func TestRunToolLoopMissingTool(t *testing.T) {
	client := &scriptedClient{script: []llm.Message{
		assistantWithCall("nonexistent", `{}`),
		llm.NewAssistantMessage("done"),
	}}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()

	answer, err := RunToolLoop(context.Background(), client, history, "go", registry)
	require.NoError(t, err)
	assert.Equal(t, "done", answer)

	found := false
	for _, msg := range history.GetMessages() {
		if msg.Role == llm.RoleTool {
			assert.Equal(t, "Tool 'nonexistent' is not available.", msg.Content)
			assert.Equal(t, "call_1", msg.ToolCallID)
			found = true
		}
	}
	assert.True(t, found, "expected a tool-result turn for the missing tool")
}

func TestRunToolLoopToolError(t *testing.T) {
	client := &scriptedClient{script: []llm.Message{
		assistantWithCall("broken", `{}`),
		llm.NewAssistantMessage("recovered"),
	}}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()
	registry.Register(&funcTool{name: "broken", fn: func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("boom")
	}})

	answer, err := RunToolLoop(context.Background(), client, history, "go", registry)
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	found := false
	for _, msg := range history.GetMessages() {
		if msg.Role == llm.RoleTool {
			assert.Equal(t, "Tool 'broken' failed: boom", msg.Content)
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunToolLoopToolPanic(t *testing.T) {
	client := &scriptedClient{script: []llm.Message{
		assistantWithCall("panicky", `{}`),
		llm.NewAssistantMessage("still alive"),
	}}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()
	registry.Register(&funcTool{name: "panicky", fn: func(ctx context.Context, args map[string]any) (string, error) {
		panic("oh no")
	}})

	answer, err := RunToolLoop(context.Background(), client, history, "go", registry)
	require.NoError(t, err)
	assert.Equal(t, "still alive", answer)

	found := false
	for _, msg := range history.GetMessages() {
		if msg.Role == llm.RoleTool {
			assert.Equal(t, "Tool 'panicky' failed: oh no", msg.Content)
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunToolLoopBadArguments(t *testing.T) {
	client := &scriptedClient{script: []llm.Message{
		assistantWithCall("echo", `{not json`),
		llm.NewAssistantMessage("ok"),
	}}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()
	registry.Register(&funcTool{name: "echo", fn: func(ctx context.Context, args map[string]any) (string, error) {
		return "never reached", nil
	}})

	answer, err := RunToolLoop(context.Background(), client, history, "go", registry)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)

	for _, msg := range history.GetMessages() {
		if msg.Role == llm.RoleTool {
			assert.Contains(t, msg.Content, "Tool 'echo' failed:")
		}
	}
}

func TestRunToolLoopModelErrorPropagates(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}
	history := llm.NewChatHistory()
	registry := tools.NewToolRegistry()

	_, err := RunToolLoop(context.Background(), client, history, "go", registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model invocation failed in round 1")

	// The error path returns before any fold-back happens.
	assert.Equal(t, 0, history.Len())
}
