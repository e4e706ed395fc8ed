package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

type contextKey string

// WorkRequestIDKey 是掛在 job context 上的請求識別鍵,
// logger 與 exchange debugger 用它取出 request id。
const WorkRequestIDKey contextKey = "work_request_id"

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "usage (%s): prompt=%d completion=%d total=%d", model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if usage.StopReason != "" {
		fmt.Fprintf(&sb, " reason=%s", usage.StopReason)
	}
	log.Println(sb.String())
}

// ChatClient 通用 LLM 客戶端介面
type ChatClient interface {
	// Complete 執行一次完整的對話補全
	// messages: 對話歷史（使用 llm.Message 結構）
	// 返回值: 一則 assistant 訊息（內容 + 最終用量統計）
	Complete(ctx context.Context, messages []Message) (Message, error)

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool
}

// ToolCapableClient 擴充 ChatClient，支援工具綁定的補全。
// 具體的 provider 在建構時決定是否實作此介面，呼叫端以型別斷言檢查，
// 不做 runtime attribute 探測。
type ToolCapableClient interface {
	ChatClient

	// CompleteWithTools 執行一次綁定工具的補全；回傳的 assistant 訊息
	// 可能攜帶 ToolCalls 而非最終答案。
	CompleteWithTools(ctx context.Context, messages []Message, tools []Tool) (Message, error)
}

// Tool 描述一個可以提供給 LLM 的工具（僅 metadata，不含執行邏輯）
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	RequiredParameters() []string
}

// ToolSpecs 將工具清單轉成通用的 JSON-schema map 形式，
// 各 provider 再轉換為自家 SDK 的格式。
func ToolSpecs(tools []Tool) []map[string]any {
	specs := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters": map[string]any{
					"type":       "object",
					"properties": t.Parameters(),
					"required":   t.RequiredParameters(),
				},
			},
		})
	}
	return specs
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []ChatClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Complete(ctx context.Context, messages []Message) (Message, error) {
	return f.attempt(ctx, func(ctx context.Context, client ChatClient) (Message, error) {
		return client.Complete(ctx, messages)
	})
}

// CompleteWithTools 實作 ToolCapableClient；不支援工具的 child client 會被略過。
// 若沒有任何 child 支援工具,退回一般補全,與單一不支援工具的 client 行為一致。
func (f *FallbackClient) CompleteWithTools(ctx context.Context, messages []Message, tools []Tool) (Message, error) {
	anyCapable := false
	for _, client := range f.Clients {
		if _, ok := client.(ToolCapableClient); ok {
			anyCapable = true
			break
		}
	}
	if !anyCapable {
		return f.Complete(ctx, messages)
	}

	return f.attempt(ctx, func(ctx context.Context, client ChatClient) (Message, error) {
		tc, ok := client.(ToolCapableClient)
		if !ok {
			return Message{}, fmt.Errorf("client does not support tool binding")
		}
		return tc.CompleteWithTools(ctx, messages, tools)
	})
}

func (f *FallbackClient) attempt(ctx context.Context, call func(context.Context, ChatClient) (Message, error)) (Message, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			log.Printf("⚠️ Previous provider failed. Trying fallback provider #%d...", i+1)
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				log.Printf("🔄 Retrying provider #%d (attempt %d/%d)...", i, retry, maxRetries)
				// 稍微等待一下再重試
				select {
				case <-ctx.Done():
					return Message{}, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			msg, err := call(ctx, client)
			if err == nil {
				return msg, nil
			}

			lastErr = err

			// Check if the error is transient using the client's implementation
			if client.IsTransientError(err) && retry < maxRetries {
				log.Printf("❌ Provider #%d failed with transient error: %v. Retrying...", i+1, err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			log.Printf("❌ Provider #%d failed: %v", i+1, err)
			break
		}
	}
	return Message{}, fmt.Errorf("all fallback providers failed. Last error: %v", lastErr)
}

// IsTransientError 實作 ChatClient 介面
// FallbackClient 本身通常不直接拋出暫時性錯誤，而是由內部的 Client 處理重試
func (f *FallbackClient) IsTransientError(err error) bool {
	// FallbackClient 是一個容器，它的錯誤通常意味著所有 Child 都失敗了
	// 因此視為非暫時性
	return false
}
