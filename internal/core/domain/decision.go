package domain

import "time"

// Strategy identifies a recovery strategy.
type Strategy string

const (
	StrategyRetry        Strategy = "retry"
	StrategyPartialRetry Strategy = "partial_retry"
	StrategyFallback     Strategy = "fallback"
	StrategyEscalate     Strategy = "escalate"
)

// RetryPlan describes a bounded exponential backoff retry.
type RetryPlan struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Multiplier  float64       `json:"multiplier"`
	MaxDelay    time.Duration `json:"max_delay"`
	Jitter      bool          `json:"jitter"`
}

// PartialRetryPlan describes a re-run that skips steps known to be safe to omit.
type PartialRetryPlan struct {
	FailedSteps []string       `json:"failed_steps"`
	SkipSteps   []string       `json:"skip_steps"`
	Input       map[string]any `json:"input"`
}

// FallbackPlan describes substituting a degraded alternate provider.
type FallbackPlan struct {
	Provider   string         `json:"provider"`
	Method     string         `json:"method"`
	Input      map[string]any `json:"input"`
	MinQuality float64        `json:"min_quality"`
}

// RecoveryDecision is a closed union: the Strategy tag determines which plan
// field is set, and exactly one is ever non-nil. Decisions are created fresh
// per message, consumed by the matching executor, then discarded.
type RecoveryDecision struct {
	Strategy Strategy          `json:"strategy"`
	Retry    *RetryPlan        `json:"retry,omitempty"`
	Partial  *PartialRetryPlan `json:"partial,omitempty"`
	Fallback *FallbackPlan     `json:"fallback,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// RetryDecision builds a retry decision.
func RetryDecision(plan RetryPlan) RecoveryDecision {
	return RecoveryDecision{Strategy: StrategyRetry, Retry: &plan}
}

// PartialRetryDecision builds a partial retry decision.
func PartialRetryDecision(plan PartialRetryPlan) RecoveryDecision {
	return RecoveryDecision{Strategy: StrategyPartialRetry, Partial: &plan}
}

// FallbackDecision builds a fallback decision.
func FallbackDecision(plan FallbackPlan) RecoveryDecision {
	return RecoveryDecision{Strategy: StrategyFallback, Fallback: &plan}
}

// EscalateDecision builds a terminal escalation decision.
func EscalateDecision(reason string) RecoveryDecision {
	return RecoveryDecision{Strategy: StrategyEscalate, Reason: reason}
}
