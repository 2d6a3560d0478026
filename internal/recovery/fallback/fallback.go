package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// Invoker calls an opaque capability provider.
type Invoker interface {
	Invoke(ctx context.Context, provider, method string, input map[string]any) (map[string]any, error)
}

// Table maps a failed provider to its degraded substitute. Anything unmapped
// falls back to DefaultProvider.
type Table struct {
	Substitutes     map[string]string `yaml:"substitutes"`
	DefaultProvider string            `yaml:"default_provider"`
	Method          string            `yaml:"method"`
	MinQuality      float64           `yaml:"min_quality"`
	Timeout         time.Duration     `yaml:"timeout"`
}

// DefaultTable returns the built-in substitution table.
func DefaultTable() Table {
	return Table{
		Substitutes: map[string]string{
			"browser":         "web-search",
			"doc-analysis":    "general-qa",
			"semantic-search": "keyword-search",
		},
		DefaultProvider: "manual-processing",
		Method:          "process",
		MinQuality:      0.5,
		Timeout:         120 * time.Second,
	}
}

// BuildPlan constructs the degraded-provider plan for a failed task. The
// simplified input carries fallback markers and a looser timeout; callers of
// the substitute provider accept reduced output quality in exchange for
// forward progress.
func BuildPlan(task *domain.FailedTask, table Table) domain.FallbackPlan {
	provider, ok := table.Substitutes[task.AgentName]
	if !ok {
		provider = table.DefaultProvider
	}

	input := make(map[string]any, len(task.Payload)+4)
	for k, v := range task.Payload {
		input[k] = v
	}
	input["fallback"] = true
	input["quality"] = "reduced"
	input["original_agent"] = task.AgentName
	input["timeout_ms"] = table.Timeout.Milliseconds()

	return domain.FallbackPlan{
		Provider:   provider,
		Method:     table.Method,
		Input:      input,
		MinQuality: table.MinQuality,
	}
}

// Executor invokes the substitute provider chosen by a fallback plan.
type Executor struct {
	invoker Invoker
	log     *slog.Logger
}

// NewExecutor creates a fallback executor.
func NewExecutor(invoker Invoker) *Executor {
	return &Executor{
		invoker: invoker,
		log:     slog.Default().With("component", "fallback"),
	}
}

// Execute performs exactly one invocation of the alternate provider.
func (e *Executor) Execute(ctx context.Context, task *domain.FailedTask, plan *domain.FallbackPlan) error {
	e.log.Info("Invoking fallback provider",
		"message_id", task.MessageID,
		"agent", task.AgentName,
		"provider", plan.Provider,
		"min_quality", plan.MinQuality,
	)

	if _, err := e.invoker.Invoke(ctx, plan.Provider, plan.Method, plan.Input); err != nil {
		return fmt.Errorf("fallback invoke %s.%s: %w", plan.Provider, plan.Method, err)
	}
	return nil
}
