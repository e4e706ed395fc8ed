package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ExchangeDebugger handles the creation and writing of debug logs for LLM
// exchanges. It centralizes the logic for directory creation, file naming,
// and safe writing; one file is produced per completion call.
type ExchangeDebugger struct {
	file    *os.File
	enabled bool
}

// NewExchangeDebugger creates a new debugger instance.
// It attempts to open the debug file immediately if enabled. When the context
// carries a work request ID, the file is nested under it so every exchange of
// one job lands in the same directory.
func NewExchangeDebugger(ctx context.Context, provider string, enabled bool) *ExchangeDebugger {
	if !enabled {
		return &ExchangeDebugger{enabled: false}
	}

	debugDir := filepath.Join("debug", "exchanges", provider)

	if val := ctx.Value(WorkRequestIDKey); val != nil {
		if id, ok := val.(string); ok && id != "" {
			debugDir = filepath.Join("debug", "exchanges", id, provider)
		}
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Error("Failed to create debug directory", "dir", debugDir, "error", err)
		return &ExchangeDebugger{enabled: false}
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", timestamp))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", filename, "error", err)
		return &ExchangeDebugger{enabled: false}
	}

	slog.Debug("Debug mode ON", "provider", provider, "file", filename)
	return &ExchangeDebugger{
		file:    f,
		enabled: true,
	}
}

// WriteRequest dumps the outgoing message list as JSON.
func (d *ExchangeDebugger) WriteRequest(messages []Message) {
	if !d.enabled || d.file == nil {
		return
	}
	data, err := json.Marshal(messages)
	if err != nil {
		slog.Warn("Failed to marshal debug request", "error", err)
		return
	}
	d.file.WriteString(">>> request\n")
	d.file.Write(data)
	d.file.WriteString("\n")
}

// WriteResponse dumps the returned assistant message as JSON.
func (d *ExchangeDebugger) WriteResponse(msg Message) {
	if !d.enabled || d.file == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("Failed to marshal debug response", "error", err)
		return
	}
	d.file.WriteString("<<< response\n")
	d.file.Write(data)
	d.file.WriteString("\n")
}

// Close closes the debug file handle.
func (d *ExchangeDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
