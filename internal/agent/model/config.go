package model

// ================ Config ================
type ConversationConfig struct {
	TTL    string `envconfig:"CONVERSATION_TTL" default:"15m"`
	Router struct {
		MaxTurns int `envconfig:"CONVERSATION_ROUTER_MAX_TURNS" default:"5"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"6"`
	}
}

// ProviderConfig selects the LLM backend and carries per-provider connection
// settings. The same model serves every pipeline stage; stage configs below
// only tune sampling.
type ProviderConfig struct {
	Name   string `envconfig:"MODEL_PROVIDER" default:"openai"`
	OpenAI struct {
		APIKey  string `envconfig:"OPENAI_API_KEY"`
		BaseURL string `envconfig:"OPENAI_BASE_URL"`
		Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	}
	Ollama struct {
		BaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
		Model   string `envconfig:"OLLAMA_MODEL" default:"llama3.1"`
	}
	Gemini struct {
		APIKey  string `envconfig:"GEMINI_API_KEY"`
		BaseURL string `envconfig:"GEMINI_BASE_URL"`
		Model   string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	}
}

// IntentModelConfig tunes the router/planner stages (deterministic analysis).
type IntentModelConfig struct {
	MaxTokens   int     `envconfig:"INTENT_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"INTENT_TEMPERATURE" default:"0"`
}

// ResponseModelConfig tunes the retriever/answer stages.
type ResponseModelConfig struct {
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.2"`
}
