package config

import "time"

// WorkflowConfig contains worker pool and state-machine configuration.
// These values control how workflow items are polled, claimed, processed,
// and retried.
type WorkflowConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod. Each
	// worker independently polls and claims workflow items.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentItems is the global limit of items being processed
	// across all replicas, enforced by a database COUNT(*) check.
	MaxConcurrentItems int `yaml:"max_concurrent_items"`

	// PollInterval is the base interval for checking queued items.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ItemTimeout is the maximum time a single item may spend in
	// PROCESSING before its context is cancelled.
	ItemTimeout time.Duration `yaml:"item_timeout"`

	// GracefulShutdownTimeout bounds how long Stop waits for in-flight
	// items to finish before returning.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned items
	// (claimed but not heartbeating).
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long an item can go without a heartbeat before
	// it is considered orphaned and requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// MaxRetries caps the number of RETRYING transitions before an item is
	// moved to FAILED.
	MaxRetries int `yaml:"max_retries" validate:"omitempty,min=0"`

	// RetryBaseDelay is the base delay for the exponential backoff policy
	// (delay = RetryBaseDelay * 2^retry_count, capped at RetryMaxDelay).
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// RetryMaxDelay caps the computed backoff delay.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`
}

// DefaultWorkflowConfig returns the built-in workflow engine defaults.
func DefaultWorkflowConfig() *WorkflowConfig {
	return &WorkflowConfig{
		WorkerCount:             5,
		MaxConcurrentItems:      5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		ItemTimeout:             10 * time.Minute,
		GracefulShutdownTimeout: 10 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
		MaxRetries:              3,
		RetryBaseDelay:          60 * time.Second,
		RetryMaxDelay:           1 * time.Hour,
	}
}
