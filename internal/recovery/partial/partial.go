package partial

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vietddude/triage/internal/core/domain"
)

// Orchestrator starts a new workflow execution. The engine only starts runs,
// it never executes steps itself.
type Orchestrator interface {
	StartExecution(ctx context.Context, definition, name string, input map[string]any) (string, error)
}

// BuildPlan derives the modified input for a partial re-run: validation is
// skipped, steps implicated by the failure are marked, and the correlation id
// links the new run back to the original workflow.
func BuildPlan(task *domain.FailedTask) domain.PartialRetryPlan {
	failed := stepsFromContext(task.Error.Context)
	skip := append([]string{"validation"}, failed...)

	input := make(map[string]any, len(task.Payload)+4)
	for k, v := range task.Payload {
		input[k] = v
	}
	input["skip_validation"] = true
	input["failed_steps"] = failed
	input["steps_to_skip"] = skip
	input["correlation_id"] = task.CorrelationID

	return domain.PartialRetryPlan{
		FailedSteps: failed,
		SkipSteps:   skip,
		Input:       input,
	}
}

func stepsFromContext(ctx map[string]any) []string {
	if ctx == nil {
		return nil
	}
	raw, ok := ctx["failed_steps"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		steps := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				steps = append(steps, str)
			}
		}
		return steps
	}
	return nil
}

// ExecutionName generates a fresh, globally unique name for a partial re-run.
// Callers must not reuse a name: the orchestrator deduplicates on it.
func ExecutionName(task *domain.FailedTask) string {
	return fmt.Sprintf("partial-retry-%s-%s", task.MessageID, uuid.New().String())
}

// Executor starts partial re-runs through the orchestrator.
type Executor struct {
	orchestrator Orchestrator
	definition   string
	log          *slog.Logger
}

// NewExecutor creates a partial retry executor bound to one workflow definition.
func NewExecutor(orchestrator Orchestrator, definition string) *Executor {
	return &Executor{
		orchestrator: orchestrator,
		definition:   definition,
		log:          slog.Default().With("component", "partial_retry"),
	}
}

// Execute starts exactly one orchestrator run carrying the modified input.
func (e *Executor) Execute(ctx context.Context, task *domain.FailedTask, plan *domain.PartialRetryPlan) error {
	name := ExecutionName(task)

	e.log.Info("Starting partial retry execution",
		"message_id", task.MessageID,
		"execution", name,
		"skip_steps", plan.SkipSteps,
	)

	execID, err := e.orchestrator.StartExecution(ctx, e.definition, name, plan.Input)
	if err != nil {
		return fmt.Errorf("start partial retry execution %s: %w", name, err)
	}

	e.log.Info("Partial retry execution started", "execution", name, "execution_id", execID)
	return nil
}
