package config

import "time"

// ImageHostConfig configures the narrow collaborator that re-hosts listing
// images to stable, durable URLs.
type ImageHostConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	TokenEnv string        `yaml:"token_env,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchIndexConfig configures the narrow collaborator that publishes
// completed product versions to a search index.
type SearchIndexConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	TokenEnv string        `yaml:"token_env,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`

	// Required, when true, makes indexing failures fail the workflow item
	// (the client returns a pipelineerr.Fatal and the item moves to FAILED)
	// rather than being logged and skipped (resolves an Open Question; see
	// SPEC_FULL.md §9).
	Required bool `yaml:"required"`
}

// NotifyConfig configures the narrow collaborator that announces
// newly-scored products to downstream subscribers.
type NotifyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	TokenEnv string        `yaml:"token_env,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
	Required bool          `yaml:"required"`
}

// DefaultImageHostConfig returns the built-in image-host defaults: disabled,
// so a deployment without image re-hosting configured degrades gracefully.
func DefaultImageHostConfig() *ImageHostConfig {
	return &ImageHostConfig{Enabled: false, Timeout: 15 * time.Second}
}

// DefaultSearchIndexConfig returns the built-in search-index defaults.
func DefaultSearchIndexConfig() *SearchIndexConfig {
	return &SearchIndexConfig{Enabled: false, Timeout: 10 * time.Second, Required: false}
}

// DefaultNotifyConfig returns the built-in notification defaults.
func DefaultNotifyConfig() *NotifyConfig {
	return &NotifyConfig{Enabled: false, Timeout: 10 * time.Second, Required: false}
}
