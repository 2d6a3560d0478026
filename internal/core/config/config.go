package config

import (
	"time"

	"github.com/vietddude/triage/internal/infra/redisq"
	"github.com/vietddude/triage/internal/infra/storage/postgres"
	"github.com/vietddude/triage/internal/recovery/engine"
	"github.com/vietddude/triage/internal/recovery/fallback"
	"github.com/vietddude/triage/internal/recovery/strategy"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Queue        QueueConfig        `yaml:"queue"`
	Redis        redisq.Config      `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
	Engine       engine.Config      `yaml:"engine"`
	Strategy     strategy.Config    `yaml:"strategy"`
	Rules        strategy.Rules     `yaml:"rules"`
	Fallback     fallback.Table     `yaml:"fallback"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Agents       AgentsConfig       `yaml:"agents"`
	Notify       NotifyConfig       `yaml:"notify"`
	Ticketing    TicketingConfig    `yaml:"ticketing"`
	Retention    time.Duration      `yaml:"retention"` // metric sample retention, 0 = infinite
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds dead-letter queue settings.
type QueueConfig struct {
	Name        string        `yaml:"name"`
	DedupWindow time.Duration `yaml:"dedup_window"` // 0 = dedup disabled
}

// OrchestratorConfig holds workflow orchestrator settings.
type OrchestratorConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Definition string `yaml:"definition"` // workflow definition started by partial retries
}

// AgentsConfig holds capability-provider gateway settings.
type AgentsConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotifyConfig holds operations notification settings.
type NotifyConfig struct {
	Topic string `yaml:"topic"`
}

// TicketingConfig holds ticketing endpoint settings.
type TicketingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}
