package config

import "time"

// QuotaLimitConfig overrides one rolling quota window for a named external
// service. Limit kinds not listed fall back to quota.DefaultLimits().
type QuotaLimitConfig struct {
	Kind   string        `yaml:"kind" validate:"required,oneof=tokens_per_minute tokens_per_day requests_per_minute requests_per_day"`
	Max    int64         `yaml:"max" validate:"required,min=1"`
	Window time.Duration `yaml:"window" validate:"required"`
}

// QuotaPricingConfig overrides the per-unit USD pricing used for cost
// tracking on a named service.
type QuotaPricingConfig struct {
	Model           string  `yaml:"model"`
	InputPerKToken  float64 `yaml:"input_per_k_token"`
	OutputPerKToken float64 `yaml:"output_per_k_token"`
	ImagePerImage   float64 `yaml:"image_per_image"`
}

// QuotaConfig configures per-service quota overrides. Services not present
// in the map use quota.DefaultLimits() and quota.DefaultPricing().
type QuotaConfig struct {
	Services map[string]QuotaServiceConfig `yaml:"services"`
}

// QuotaServiceConfig is one service's quota override entry.
type QuotaServiceConfig struct {
	Limits  []QuotaLimitConfig  `yaml:"limits,omitempty"`
	Pricing *QuotaPricingConfig `yaml:"pricing,omitempty"`
}

// DefaultQuotaConfig returns an empty override set: every service uses the
// quota package's built-in defaults.
func DefaultQuotaConfig() *QuotaConfig {
	return &QuotaConfig{Services: map[string]QuotaServiceConfig{}}
}
