package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/recovery/engine"
	"github.com/vietddude/triage/internal/recovery/strategy"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "failed-tasks"
	}
	if cfg.Notify.Topic == "" {
		cfg.Notify.Topic = "ops-alerts"
	}
	if cfg.Agents.Timeout == 0 {
		cfg.Agents.Timeout = 60 * time.Second
	}

	// Each field defaults independently so a partially configured section
	// never loses its set values.
	engineDef := engine.DefaultConfig()
	if cfg.Engine.BatchSize == 0 {
		cfg.Engine.BatchSize = engineDef.BatchSize
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = engineDef.Workers
	}
	if cfg.Engine.AnalysisTimeout == 0 {
		cfg.Engine.AnalysisTimeout = engineDef.AnalysisTimeout
	}
	if cfg.Engine.EmptySleep == 0 {
		cfg.Engine.EmptySleep = engineDef.EmptySleep
	}

	strategyDef := strategy.DefaultConfig()
	if cfg.Strategy.MaxRetries == 0 {
		cfg.Strategy.MaxRetries = strategyDef.MaxRetries
	}
	if cfg.Strategy.Retry == (domain.RetryPlan{}) {
		// Untouched section; take the whole default including the jitter flag.
		cfg.Strategy.Retry = strategyDef.Retry
		return
	}
	if cfg.Strategy.Retry.MaxAttempts == 0 {
		cfg.Strategy.Retry.MaxAttempts = strategyDef.Retry.MaxAttempts
	}
	if cfg.Strategy.Retry.BaseDelay == 0 {
		cfg.Strategy.Retry.BaseDelay = strategyDef.Retry.BaseDelay
	}
	if cfg.Strategy.Retry.Multiplier == 0 {
		cfg.Strategy.Retry.Multiplier = strategyDef.Retry.Multiplier
	}
	if cfg.Strategy.Retry.MaxDelay == 0 {
		cfg.Strategy.Retry.MaxDelay = strategyDef.Retry.MaxDelay
	}
}
