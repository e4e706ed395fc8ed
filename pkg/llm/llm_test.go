package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	reply     Message
	errs      []error // consumed one per call; nil entry = success
	calls     int
	transient bool
}

func (c *fakeClient) Complete(ctx context.Context, msgs []Message) (Message, error) {
	var err error
	if c.calls < len(c.errs) {
		err = c.errs[c.calls]
	}
	c.calls++
	if err != nil {
		return Message{}, err
	}
	return c.reply, nil
}

func (c *fakeClient) IsTransientError(err error) bool { return c.transient }

func TestFallbackClientFirstProviderWins(t *testing.T) {
	primary := &fakeClient{reply: NewAssistantMessage("primary")}
	secondary := &fakeClient{reply: NewAssistantMessage("secondary")}
	f := &FallbackClient{Clients: []ChatClient{primary, secondary}}

	msg, err := f.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", msg.Content)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackClientFallsThrough(t *testing.T) {
	primary := &fakeClient{errs: []error{errors.New("401 unauthorized")}}
	secondary := &fakeClient{reply: NewAssistantMessage("secondary")}
	f := &FallbackClient{Clients: []ChatClient{primary, secondary}}

	msg, err := f.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "secondary", msg.Content)
}

func TestFallbackClientRetriesTransientErrors(t *testing.T) {
	flaky := &fakeClient{
		reply:     NewAssistantMessage("eventually"),
		errs:      []error{errors.New("503 service unavailable"), errors.New("503 service unavailable"), nil},
		transient: true,
	}
	f := &FallbackClient{Clients: []ChatClient{flaky}, MaxRetries: 3}

	msg, err := f.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "eventually", msg.Content)
	assert.Equal(t, 3, flaky.calls)
}

func TestFallbackClientAllFail(t *testing.T) {
	a := &fakeClient{errs: []error{errors.New("down")}}
	b := &fakeClient{errs: []error{errors.New("also down")}}
	f := &FallbackClient{Clients: []ChatClient{a, b}}

	_, err := f.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all fallback providers failed")
	assert.Contains(t, err.Error(), "also down")
}

type fakeToolClient struct {
	fakeClient
	toolReply Message
	toolCalls int
}

func (c *fakeToolClient) CompleteWithTools(ctx context.Context, msgs []Message, tools []Tool) (Message, error) {
	c.toolCalls++
	return c.toolReply, nil
}

func TestFallbackClientToolsFallBackToPlainCompletion(t *testing.T) {
	// 沒有任何子 client 支援工具時,整體行為退回一般補全,
	// 而不是讓整個工具呼叫失敗。
	plain := &fakeClient{reply: NewAssistantMessage("plain")}
	f := &FallbackClient{Clients: []ChatClient{plain}}

	msg, err := f.CompleteWithTools(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", msg.Content)
	assert.Equal(t, 1, plain.calls)
}

func TestFallbackClientToolsSkipIncapableChildren(t *testing.T) {
	plain := &fakeClient{reply: NewAssistantMessage("plain")}
	capable := &fakeToolClient{toolReply: NewAssistantMessage("with tools")}
	f := &FallbackClient{Clients: []ChatClient{plain, capable}}

	msg, err := f.CompleteWithTools(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "with tools", msg.Content)
	assert.Equal(t, 1, capable.toolCalls)
	// The incapable child is skipped on the tool path, not invoked.
	assert.Equal(t, 0, plain.calls)
}

func TestToolSpecsShape(t *testing.T) {
	specs := ToolSpecs([]Tool{stubTool{}})
	require.Len(t, specs, 1)
	assert.Equal(t, "function", specs[0]["type"])

	fn, ok := specs[0]["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stub", fn["name"])

	params, ok := fn["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
}

type stubTool struct{}

func (stubTool) Name() string        { return "stub" }
func (stubTool) Description() string { return "a stub" }
func (stubTool) Parameters() map[string]any {
	return map[string]any{"q": map[string]any{"type": "string"}}
}
func (stubTool) RequiredParameters() []string { return []string{"q"} }
