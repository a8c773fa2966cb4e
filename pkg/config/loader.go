package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// structValidator runs the `validate:"..."` struct tags declared on the
// config types (WorkflowConfig.MaxRetries, AIConfig.PromptMode/MaxImages,
// QuotaLimitConfig, ...) the same way gin binds request structs.
var structValidator = validator.New()

// YAMLConfig represents the complete squorcore.yaml file structure.
type YAMLConfig struct {
	Workflow    *WorkflowConfig    `yaml:"workflow"`
	AI          *AIConfig          `yaml:"ai"`
	Quota       *QuotaConfig       `yaml:"quota"`
	Retention   *RetentionConfig   `yaml:"retention"`
	ImageHost   *ImageHostConfig   `yaml:"image_host"`
	SearchIndex *SearchIndexConfig `yaml:"search_index"`
	Notify      *NotifyConfig      `yaml:"notify"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load squorcore.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in defaults with user-provided overrides
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"worker_count", stats.WorkerCount,
		"quota_overrides", stats.QuotaOverrides,
		"image_host_enabled", stats.ImageHostEnabled,
		"search_index_enabled", stats.SearchIndexEnabled,
		"notify_enabled", stats.NotifyEnabled)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadSquorcoreYAML()
	if err != nil {
		return nil, NewLoadError("squorcore.yaml", err)
	}

	workflowCfg := DefaultWorkflowConfig()
	if yamlCfg.Workflow != nil {
		if err := mergo.Merge(workflowCfg, yamlCfg.Workflow, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge workflow config: %w", err)
		}
	}

	aiCfg := DefaultAIConfig()
	if yamlCfg.AI != nil {
		if err := mergo.Merge(aiCfg, yamlCfg.AI, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge AI config: %w", err)
		}
	}

	quotaCfg := DefaultQuotaConfig()
	if yamlCfg.Quota != nil {
		quotaCfg = yamlCfg.Quota
	}

	retentionCfg := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	imageHostCfg := DefaultImageHostConfig()
	if yamlCfg.ImageHost != nil {
		if err := mergo.Merge(imageHostCfg, yamlCfg.ImageHost, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge image_host config: %w", err)
		}
	}

	searchIndexCfg := DefaultSearchIndexConfig()
	if yamlCfg.SearchIndex != nil {
		if err := mergo.Merge(searchIndexCfg, yamlCfg.SearchIndex, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge search_index config: %w", err)
		}
	}

	notifyCfg := DefaultNotifyConfig()
	if yamlCfg.Notify != nil {
		if err := mergo.Merge(notifyCfg, yamlCfg.Notify, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge notify config: %w", err)
		}
	}

	return &Config{
		configDir:   configDir,
		Workflow:    workflowCfg,
		AI:          aiCfg,
		Quota:       quotaCfg,
		Retention:   retentionCfg,
		ImageHost:   imageHostCfg,
		SearchIndex: searchIndexCfg,
		Notify:      notifyCfg,
	}, nil
}

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg.Workflow); err != nil {
		return NewValidationError("workflow", "-", "", err)
	}
	if err := structValidator.Struct(cfg.AI); err != nil {
		return NewValidationError("ai", "-", "", err)
	}
	for name, svc := range cfg.Quota.Services {
		for _, limit := range svc.Limits {
			if err := structValidator.Struct(limit); err != nil {
				return NewValidationError("quota", name, "limits", err)
			}
		}
	}

	if cfg.Workflow.WorkerCount < 1 {
		return fmt.Errorf("%w: workflow.worker_count must be at least 1", ErrInvalidValue)
	}
	if cfg.AI.Endpoint == "" {
		return fmt.Errorf("%w: ai.endpoint is required", ErrMissingRequiredField)
	}
	switch cfg.AI.PromptMode {
	case "", "minimal", "standard", "detailed":
	default:
		return fmt.Errorf("%w: ai.prompt_mode %q is not one of minimal/standard/detailed", ErrInvalidValue, cfg.AI.PromptMode)
	}
	return nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadSquorcoreYAML() (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := l.loadYAML("squorcore.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
