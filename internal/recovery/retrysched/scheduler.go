package retrysched

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// maxJitter bounds the random spread added on top of the backoff delay.
const maxJitter = 10 * time.Second

// Publisher re-enqueues a task onto its source queue after a delay.
type Publisher interface {
	Publish(ctx context.Context, queue string, task *domain.FailedTask, delay time.Duration) error
}

// Scheduler computes backoff delays and re-enqueues tasks for retry.
type Scheduler struct {
	pub Publisher
	log *slog.Logger
}

// NewScheduler creates a retry scheduler.
func NewScheduler(pub Publisher) *Scheduler {
	return &Scheduler{
		pub: pub,
		log: slog.Default().With("component", "retry_scheduler"),
	}
}

// Delay calculates the deterministic backoff: BaseDelay * Multiplier^attempt,
// capped at MaxDelay. Monotonically non-decreasing in attempt.
func Delay(plan *domain.RetryPlan, attempt int) time.Duration {
	d := float64(plan.BaseDelay) * math.Pow(plan.Multiplier, float64(attempt))
	if d > float64(plan.MaxDelay) {
		return plan.MaxDelay
	}
	return time.Duration(d)
}

// JitteredDelay adds bounded random jitter when the plan enables it. The
// result never exceeds the plan's cap.
func JitteredDelay(plan *domain.RetryPlan, attempt int) time.Duration {
	d := Delay(plan, attempt)
	if !plan.Jitter {
		return d
	}

	headroom := plan.MaxDelay - d
	if headroom <= 0 {
		return d
	}
	if headroom > maxJitter {
		headroom = maxJitter
	}
	return d + rand.N(headroom)
}

// Schedule re-publishes the task to its source queue with the attempt counter
// incremented by exactly one and a retry-reason annotation. One publish per
// call; publish failure is the caller's to escalate.
func (s *Scheduler) Schedule(ctx context.Context, task *domain.FailedTask, plan *domain.RetryPlan) error {
	delay := JitteredDelay(plan, task.Attempt)

	retry := *task
	retry.Attempt = task.Attempt + 1
	retry.Reason = fmt.Sprintf("retry attempt %d: %s", retry.Attempt, task.Error.Message)

	s.log.Info("Scheduling retry",
		"message_id", task.MessageID,
		"queue", task.Queue,
		"attempt", retry.Attempt,
		"delay", delay,
	)

	if err := s.pub.Publish(ctx, task.Queue, &retry, delay); err != nil {
		return fmt.Errorf("publish retry for %s: %w", task.MessageID, err)
	}
	return nil
}
