// Package autoload registers all built-in LLM provider factories.
// Import for side effects:
//
//	import _ "wallo/pkg/llm/autoload"
package autoload

import (
	_ "wallo/pkg/llm/gemini"
	_ "wallo/pkg/llm/ollama"
	_ "wallo/pkg/llm/openailm"
)
