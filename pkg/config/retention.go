package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// WorkflowItemRetentionDays is how many days to keep completed/failed
	// workflow items before soft-deleting them (setting deleted_at).
	WorkflowItemRetentionDays int `yaml:"workflow_item_retention_days"`

	// TransitionTTL is the maximum age of orphaned WorkflowTransition rows
	// whose parent item no longer exists. Per-item cleanup handles the
	// normal case; this is a safety net.
	TransitionTTL time.Duration `yaml:"transition_ttl"`

	// QuotaUsageLogRetentionDays is how long raw QuotaUsageLog rows are kept
	// before being deleted. No roll-up is kept.
	QuotaUsageLogRetentionDays int `yaml:"quota_usage_log_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		WorkflowItemRetentionDays: 180,
		TransitionTTL:             24 * time.Hour,
		QuotaUsageLogRetentionDays: 90,
		CleanupInterval:           12 * time.Hour,
	}
}
