package agent

import (
	"context"
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"

	"wallo/pkg/api"
	"wallo/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxToolRounds bounds the inference/tool-execution alternation so a model
// that keeps requesting tools can never ping-pong forever.
const maxToolRounds = 6

// RunToolLoop resolves one user prompt into one final textual answer,
// allowing the model to request zero or more tool invocations.
//
// The existing history seeds the working message list; every turn produced
// during the loop (assistant and tool turns) is folded back into the shared
// history after the loop finishes, best-effort. The returned string is the
// content of the last turn in the working list, whether the loop terminated
// because the assistant produced a final answer or because the round budget
// ran out.
//
// Only a failure of the model invocation itself propagates as an error;
// tool failures degrade into descriptive tool-result turns.
func RunToolLoop(ctx context.Context, client llm.ToolCapableClient, history *llm.ChatHistory, prompt string, registry api.ToolRegistry) (string, error) {
	working := history.GetMessages()

	userMsg := llm.NewUserMessage(prompt)
	working = append(working, userMsg)

	newTurns := []llm.Message{userMsg}
	boundTools := toolMetadata(registry)

	for round := 1; round <= maxToolRounds; round++ {
		assistantMsg, err := client.CompleteWithTools(ctx, working, boundTools)
		if err != nil {
			return "", fmt.Errorf("model invocation failed in round %d: %w", round, err)
		}

		working = append(working, assistantMsg)
		newTurns = append(newTurns, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			// Normal termination: the assistant produced a final answer.
			break
		}

		slog.InfoContext(ctx, "Executing tool calls", "round", round, "count", len(assistantMsg.ToolCalls))

		// Tool calls run strictly in the order the model listed them.
		// Every call gets exactly one tool-result turn before the next
		// inference round begins, even when the tool is missing or fails.
		for _, tc := range assistantMsg.ToolCalls {
			result := executeToolCall(ctx, tc, registry)
			toolMsg := llm.NewToolMessage(tc.ID, tc.Name, result)
			working = append(working, toolMsg)
			newTurns = append(newTurns, toolMsg)
		}
	}

	// Fold the produced turns into the shared history, best-effort.
	history.AddAll(newTurns)

	last := working[len(working)-1]
	return last.Content, nil
}

// executeToolCall resolves and invokes a single tool call. Failures of any
// kind (unknown tool, bad arguments, execution error, panic) are encoded as
// descriptive result strings and never abort the surrounding loop.
func executeToolCall(ctx context.Context, tc llm.ToolCall, registry api.ToolRegistry) (result string) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool execution panicked", "tool", tc.Name, "error", r)
			result = fmt.Sprintf("Tool '%s' failed: %v", tc.Name, r)
		}
	}()

	tool, ok := registry.Get(tc.Name)
	if !ok {
		slog.WarnContext(ctx, "Unknown tool call", "name", tc.Name)
		return fmt.Sprintf("Tool '%s' is not available.", tc.Name)
	}

	args := make(map[string]any)
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			slog.ErrorContext(ctx, "Failed to parse tool args", "tool", tc.Name, "error", err)
			return fmt.Sprintf("Tool '%s' failed: %v", tc.Name, err)
		}
	}

	slog.InfoContext(ctx, "Executing tool", "name", tc.Name, "args", args)
	res, err := tool.Execute(ctx, args)
	if err != nil {
		slog.ErrorContext(ctx, "Tool execution error", "name", tc.Name, "error", err)
		return fmt.Sprintf("Tool '%s' failed: %v", tc.Name, err)
	}

	return res
}

func toolMetadata(registry api.ToolRegistry) []llm.Tool {
	apiTools := registry.GetAll()
	bound := make([]llm.Tool, len(apiTools))
	for i, t := range apiTools {
		bound[i] = t
	}
	return bound
}
