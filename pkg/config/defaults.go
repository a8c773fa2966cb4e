package config

import "time"

// AIConfig controls the AI adapter's call shape: which endpoint/model to
// call, how much detail to request in the prompt, and retry behavior for
// unparseable responses.
type AIConfig struct {
	// Endpoint is the multimodal model HTTP endpoint to call.
	Endpoint string `yaml:"endpoint"`

	// Model is the model identifier sent in the request body.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key. The key
	// itself is never read from YAML.
	APIKeyEnv string `yaml:"api_key_env"`

	// PromptMode selects how much context is packed into the prompt: one of
	// "minimal", "standard", "detailed".
	PromptMode string `yaml:"prompt_mode" validate:"omitempty,oneof=minimal standard detailed"`

	// RequestTimeout bounds a single HTTP call to the model.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxParseRetries is loaded and validated but not read by the AI
	// adapter: a reply that fails schema validation is returned as an
	// AIParseError on the first attempt, without re-prompting.
	MaxParseRetries int `yaml:"max_parse_retries" validate:"omitempty,min=0"`

	// MaxImages caps how many listing images are sent in one call.
	MaxImages int `yaml:"max_images" validate:"omitempty,min=1"`
}

// DefaultAIConfig returns the built-in AI adapter defaults.
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		Endpoint:        "https://generativelanguage.googleapis.com/v1beta/models",
		Model:           "gemini-2.5-flash",
		APIKeyEnv:       "AI_API_KEY",
		PromptMode:      "standard",
		RequestTimeout:  60 * time.Second,
		MaxParseRetries: 2,
		MaxImages:       4,
	}
}
