package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"wallo/pkg/prompt"
)

// ServiceConfig describes one external LLM service entry the user configured.
// The API key is mandatory for hosted services; createClient-style consumers
// must reject a missing key before any work is dispatched.
type ServiceConfig struct {
	Name    string `json:"name"`
	API     string `json:"api"`
	URL     string `json:"url,omitempty"`
	Model   string `json:"model"`
}

// RagConfig holds the settings for the retrieval index.
type RagConfig struct {
	// RedisAddr is the address of the Redis instance backing the vector store.
	RedisAddr string `json:"redis_addr"`
	// EmbeddingService names the ServiceConfig whose key is used for embeddings.
	EmbeddingService string `json:"embedding_service"`
	// EmbeddingModel overrides the default embedding model if set.
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// ServerConfig holds the UI gateway settings.
type ServerConfig struct {
	Port int `json:"port"` // Default: 9453
}

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings: service credentials, prompt library, and
// the persona prompt injected into every conversation.
type Config struct {
	// Services lists the configured LLM services (key, endpoint, model).
	Services []ServiceConfig `json:"services"`
	// Prompts is the user-editable prompt library shown in the UI.
	Prompts []prompt.Definition `json:"prompts"`
	// LLM holds the provider group configuration in raw JSON; it is parsed
	// by the llm package against the registered provider factories.
	LLM jsoniter.RawMessage `json:"llm"`
	// SystemPrompt is the global persona/instruction string sent to the AI
	// as the initial system message in every conversation.
	SystemPrompt string `json:"system_prompt"`
	// PromptFooter is appended to every assembled prompt.
	PromptFooter string `json:"prompt_footer,omitempty"`
	// Header and Footer wrap generated content before editor insertion.
	Header string `json:"header,omitempty"`
	Footer string `json:"footer,omitempty"`

	RAG    RagConfig    `json:"rag,omitempty"`
	Server ServerConfig `json:"server,omitempty"`
}

// GetServiceByName returns the named service entry, or nil if absent.
func (c *Config) GetServiceByName(name string) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the wallo core.
type SystemConfig struct {
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for a
	// dispatched job. The job context is cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// RetrievalTopK is the number of snippets fetched per retrieval query.
	RetrievalTopK int `json:"retrieval_top_k"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles the tool calling (agentic) functionality.
	// If false, the AI will not be provided with any external tools.
	EnableTools bool `json:"enable_tools"`
	// DebugExchanges enables saving every raw LLM request/response pair to
	// the /debug folder for inspection and troubleshooting purposes.
	DebugExchanges bool `json:"debug_exchanges"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:    3,
		RetryDelayMs:  500,
		LLMTimeoutMs:  600000,
		RetrievalTopK: 4,
		LogLevel:      "info",
		EnableTools:   true,
	}
}

// Load reads and parses the JSON configuration files from the current working directory.
// It first attempts to load 'config.json' (app config). If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load 'system.json'.
// Returns pointers to the loaded Config and SystemConfig, or an error if the mandatory app config fails.
func Load() (*Config, *SystemConfig, error) {
	// 1. Load Application Config
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 1a. Validate structure integrity
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// 2. Load System Config independently
	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
