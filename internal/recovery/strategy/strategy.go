package strategy

import (
	"fmt"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/recovery/fallback"
	"github.com/vietddude/triage/internal/recovery/partial"
)

// Action names the primary or exhausted move for a rule.
type Action string

const (
	ActionRetry        Action = "retry"
	ActionPartialRetry Action = "partial_retry"
	ActionFallback     Action = "fallback"
	ActionEscalate     Action = "escalate"
)

// Rule decides recovery for one error category. Retry-based rules allow
// retrying while attempt < RetryLimit (a negative limit means up to the
// global max), then apply the Exhausted action.
type Rule struct {
	Action     Action `yaml:"action"`
	RetryLimit int    `yaml:"retry_limit"`
	Exhausted  Action `yaml:"exhausted"`
}

// Rules is the per-category decision table. It is configuration, not code:
// deployments may override individual categories in the config file.
type Rules map[domain.ErrorCategory]Rule

// DefaultRules returns the built-in decision table. Transient infrastructure
// errors get a bounded retry budget before degrading to fallback; permission
// and missing-resource errors are never retried; malformed input is repaired
// via partial retry.
func DefaultRules() Rules {
	return Rules{
		domain.CategoryTimeout:            {Action: ActionRetry, RetryLimit: 2, Exhausted: ActionFallback},
		domain.CategoryThrottling:         {Action: ActionRetry, RetryLimit: 2, Exhausted: ActionFallback},
		domain.CategoryServiceUnavailable: {Action: ActionRetry, RetryLimit: 2, Exhausted: ActionFallback},
		domain.CategoryValidation:         {Action: ActionPartialRetry},
		domain.CategoryResourceNotFound:   {Action: ActionEscalate},
		domain.CategoryAccessDenied:       {Action: ActionEscalate},
		domain.CategoryInternalError:      {Action: ActionRetry, RetryLimit: 1, Exhausted: ActionFallback},
		domain.CategoryRateLimit:          {Action: ActionRetry, RetryLimit: -1, Exhausted: ActionEscalate},
		domain.CategoryUnknown:            {Action: ActionRetry, RetryLimit: 1, Exhausted: ActionEscalate},
	}
}

// Config holds selector settings.
type Config struct {
	MaxRetries int              `yaml:"max_retries"`
	Retry      domain.RetryPlan `yaml:"retry"`
}

// DefaultConfig returns selector defaults: up to 3 attempts, 5s base delay
// doubling to a 5m cap with jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Retry: domain.RetryPlan{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			Multiplier:  2.0,
			MaxDelay:    5 * time.Minute,
			Jitter:      true,
		},
	}
}

// Selector maps (category, attempt) to exactly one recovery decision.
// Selection is deterministic and never fails: unmapped combinations escalate.
type Selector struct {
	cfg   Config
	rules Rules
	table fallback.Table
}

// New creates a selector. Nil rules or a zero table fall back to the defaults.
func New(cfg Config, rules Rules, table fallback.Table) *Selector {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultConfig()
	}
	if rules == nil {
		rules = DefaultRules()
	}
	return &Selector{cfg: cfg, rules: rules, table: DefaultTableMerged(table)}
}

// DefaultTableMerged overlays configured overrides onto the default table.
// Merging is field-wise so a partial override never drops built-in mappings.
func DefaultTableMerged(override fallback.Table) fallback.Table {
	table := fallback.DefaultTable()
	for from, to := range override.Substitutes {
		table.Substitutes[from] = to
	}
	if override.DefaultProvider != "" {
		table.DefaultProvider = override.DefaultProvider
	}
	if override.Method != "" {
		table.Method = override.Method
	}
	if override.MinQuality > 0 {
		table.MinQuality = override.MinQuality
	}
	if override.Timeout > 0 {
		table.Timeout = override.Timeout
	}
	return table
}

// RetryPlan returns the configured retry plan template.
func (s *Selector) RetryPlan() domain.RetryPlan {
	return s.cfg.Retry
}

// MaxRetries returns the configured global attempt ceiling.
func (s *Selector) MaxRetries() int {
	return s.cfg.MaxRetries
}

// FallbackTable returns the merged substitution table.
func (s *Selector) FallbackTable() fallback.Table {
	return s.table
}

// Select returns the recovery decision for a task with an already-classified
// category. Attempt >= MaxRetries always escalates, as do permission and
// missing-resource errors regardless of attempt.
func (s *Selector) Select(task *domain.FailedTask, category domain.ErrorCategory) domain.RecoveryDecision {
	if task.Attempt >= s.cfg.MaxRetries {
		return domain.EscalateDecision(fmt.Sprintf(
			"Retry budget exhausted after %d attempts (category %s)", task.Attempt, category))
	}

	rule, ok := s.rules[category]
	if !ok {
		return domain.EscalateDecision(fmt.Sprintf("No recovery rule for category %s", category))
	}

	action := rule.Action
	if action == ActionRetry {
		limit := rule.RetryLimit
		if limit < 0 {
			limit = s.cfg.MaxRetries
		}
		if task.Attempt >= limit {
			action = rule.Exhausted
			if action == "" {
				action = ActionEscalate
			}
		}
	}

	switch action {
	case ActionRetry:
		return domain.RetryDecision(s.cfg.Retry)
	case ActionPartialRetry:
		return domain.PartialRetryDecision(partial.BuildPlan(task))
	case ActionFallback:
		return domain.FallbackDecision(fallback.BuildPlan(task, s.table))
	default:
		return domain.EscalateDecision(s.escalationReason(task, category))
	}
}

func (s *Selector) escalationReason(task *domain.FailedTask, category domain.ErrorCategory) string {
	switch category {
	case domain.CategoryAccessDenied:
		return fmt.Sprintf("Access denied for agent %s: %s", task.AgentName, task.Error.Message)
	case domain.CategoryResourceNotFound:
		return fmt.Sprintf("Resource not found for agent %s: %s", task.AgentName, task.Error.Message)
	default:
		return fmt.Sprintf("Automated recovery exhausted for category %s: %s", category, task.Error.Message)
	}
}
