package config

// Config is the umbrella configuration object assembled by Initialize from
// YAML plus environment-variable expansion. It is the single object wired
// through cmd/squorcore into every component that needs configuration.
type Config struct {
	configDir string

	Workflow   *WorkflowConfig
	AI         *AIConfig
	Quota      *QuotaConfig
	Retention  *RetentionConfig
	ImageHost  *ImageHostConfig
	SearchIndex *SearchIndexConfig
	Notify     *NotifyConfig
}

// ConfigDir returns the configuration directory path Initialize was called
// with.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats summarizes a loaded Config for a single startup log line.
type Stats struct {
	WorkerCount       int
	QuotaOverrides    int
	ImageHostEnabled  bool
	SearchIndexEnabled bool
	NotifyEnabled     bool
}

// Stats returns configuration statistics for logging at startup.
func (c *Config) Stats() Stats {
	return Stats{
		WorkerCount:        c.Workflow.WorkerCount,
		QuotaOverrides:     len(c.Quota.Services),
		ImageHostEnabled:   c.ImageHost.Enabled,
		SearchIndexEnabled: c.SearchIndex.Enabled,
		NotifyEnabled:      c.Notify.Enabled,
	}
}
