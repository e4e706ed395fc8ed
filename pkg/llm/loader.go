package llm

import (
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"wallo/pkg/config"
)

// NewFromConfig 把 config.json 的 "llm" 區塊展開成可用的 ChatClient。
// 每個 provider group 由已註冊的 factory 展開為一串原子 client,
// 無法辨識或建立失敗的 group 跳過不擋其餘 group。
// 展開後剛好一個 client 就直接回傳,兩個以上包成 FallbackClient
// 並帶入系統層級的重試參數。
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (ChatClient, error) {
	if rawLLM == nil {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %v", err)
	}

	var clients []ChatClient
	for _, group := range groups {
		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Skipping unknown LLM provider type", "type", group.Type)
			continue
		}

		created, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("Skipping LLM provider group", "type", group.Type, "error", err)
			continue
		}

		slog.Info("Loaded LLM provider group", "type", group.Type, "clients", len(created))
		clients = append(clients, created...)
	}

	switch len(clients) {
	case 0:
		return nil, fmt.Errorf("no usable LLM clients in configuration")
	case 1:
		return clients[0], nil
	default:
		slog.Info("LLM fallback chain ready", "clients", len(clients))
		return &FallbackClient{
			Clients:    clients,
			MaxRetries: system.MaxRetries,
			RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
		}, nil
	}
}
