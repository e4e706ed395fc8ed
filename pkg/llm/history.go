package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ChatHistory 管理單一會話的對話歷史
type ChatHistory struct {
	messages []Message
	mu       sync.RWMutex
}

// NewChatHistory 建立一個新的歷史管理員
func NewChatHistory() *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
	}
}

// Add 加入一則新訊息
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// AddAll 依序加入多則訊息
func (h *ChatHistory) AddAll(msgs []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
}

// GetMessages 取得目前的對話歷史副本
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// 返回副本
	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len 回傳目前的訊息數量
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear 清空歷史
func (h *ChatHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}

// EnsureSystemMessage 確保歷史中恰好存在一則 system 訊息。
// 採取 replace 語意：同樣的 prompt 重複注入不會產生重複的 system 訊息，
// 新的 prompt 會原地取代舊的（例如使用者切換 profile 時）。
func (h *ChatHistory) EnsureSystemMessage(prompt string) {
	if prompt == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.messages {
		if h.messages[i].Role == RoleSystem {
			if h.messages[i].Content != prompt {
				h.messages[i].Content = prompt
			}
			return
		}
	}

	// system 訊息固定放在最前面
	h.messages = append([]Message{NewSystemMessage(prompt)}, h.messages...)
}

// Save 將歷史序列化為 JSON 寫入指定路徑
func (h *ChatHistory) Save(path string) error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.messages, "", "  ")
	h.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load 從指定路徑載入歷史；檔案不存在視為空歷史，不是錯誤
func (h *ChatHistory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("failed to parse history file: %w", err)
	}

	h.mu.Lock()
	h.messages = msgs
	h.mu.Unlock()
	return nil
}
