package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/recovery/classifier"
	"github.com/vietddude/triage/internal/recovery/escalate"
	"github.com/vietddude/triage/internal/recovery/fallback"
	"github.com/vietddude/triage/internal/recovery/metrics"
	"github.com/vietddude/triage/internal/recovery/partial"
	"github.com/vietddude/triage/internal/recovery/retrysched"
	"github.com/vietddude/triage/internal/recovery/strategy"
)

// Queue delivers dead-lettered tasks in bounded batches.
type Queue interface {
	// ReceiveBatch returns up to max tasks that are due for processing
	ReceiveBatch(ctx context.Context, max int) ([]*domain.FailedTask, error)

	// Ack acknowledges successful processing of one message
	Ack(ctx context.Context, messageID string) error
}

// Config holds engine loop settings.
type Config struct {
	BatchSize       int           `yaml:"batch_size"`
	Workers         int           `yaml:"workers"`
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`
	EmptySleep      time.Duration `yaml:"empty_sleep"`
}

// DefaultConfig returns default engine settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:       10,
		Workers:         4,
		AnalysisTimeout: 30 * time.Second,
		EmptySleep:      5 * time.Second,
	}
}

// Engine consumes failed tasks, classifies each failure, selects a recovery
// strategy, and executes it exactly once per message. Every unexpected
// failure converts to an escalation; nothing is silently dropped.
type Engine struct {
	cfg       Config
	queue     Queue
	selector  *strategy.Selector
	scheduler *retrysched.Scheduler
	partial   *partial.Executor
	fallback  *fallback.Executor
	notifier  *escalate.Notifier
	recorder  *metrics.Recorder
	log       *slog.Logger
}

// New creates a recovery engine.
func New(
	cfg Config,
	queue Queue,
	selector *strategy.Selector,
	scheduler *retrysched.Scheduler,
	partialExec *partial.Executor,
	fallbackExec *fallback.Executor,
	notifier *escalate.Notifier,
	recorder *metrics.Recorder,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{
		cfg:       cfg,
		queue:     queue,
		selector:  selector,
		scheduler: scheduler,
		partial:   partialExec,
		fallback:  fallbackExec,
		notifier:  notifier,
		recorder:  recorder,
		log:       slog.Default().With("component", "engine"),
	}
}

// Run starts the batch consumer loop. It returns when the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("Starting recovery engine", "batch_size", e.cfg.BatchSize, "workers", e.cfg.Workers)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("Recovery engine stopped")
			return nil
		default:
		}

		tasks, err := e.queue.ReceiveBatch(ctx, e.cfg.BatchSize)
		if err != nil {
			e.log.Error("Failed to receive batch", "error", err)
			sleep(ctx, e.cfg.EmptySleep)
			continue
		}

		if len(tasks) == 0 {
			sleep(ctx, e.cfg.EmptySleep)
			continue
		}

		metrics.QueueBatchSize.Observe(float64(len(tasks)))
		e.ProcessBatch(ctx, tasks)
	}
}

// ProcessBatch handles each message independently in a bounded worker pool.
// One message's failure never aborts the batch, and no ordering is guaranteed
// between distinct tasks.
func (e *Engine) ProcessBatch(ctx context.Context, tasks []*domain.FailedTask) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Workers)

	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(task *domain.FailedTask) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.HandleMessage(ctx, task); err != nil {
				// Escalation itself failed: leave the message unacked so the
				// queue redelivers it.
				e.log.Error("Message processing failed terminally",
					"message_id", task.MessageID, "error", err)
				return
			}

			if err := e.queue.Ack(ctx, task.MessageID); err != nil {
				e.log.Warn("Failed to ack message", "message_id", task.MessageID, "error", err)
			}
		}(task)
	}

	wg.Wait()
}

// HandleMessage runs the full pipeline for one message: classify, select,
// execute, record. Processing is bounded by the analysis timeout; any
// executor failure, timeout, or panic converts to exactly one escalation.
// A non-nil return means even escalation failed.
func (e *Engine) HandleMessage(ctx context.Context, task *domain.FailedTask) (err error) {
	start := time.Now()
	msgCtx, cancel := context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
	defer cancel()

	category := classifier.Classify(task.Error)

	defer func() {
		if r := recover(); r != nil {
			err = e.escalateFailure(ctx, task, category,
				fmt.Sprintf("panic during recovery of %s: %v", task.MessageID, r))
		}
	}()

	decision := e.selector.Select(task, category)

	e.log.Info("Recovery decision",
		"message_id", task.MessageID,
		"agent", task.AgentName,
		"category", category,
		"strategy", decision.Strategy,
		"attempt", task.Attempt,
	)

	if execErr := e.execute(msgCtx, task, decision); execErr != nil {
		if decision.Strategy == domain.StrategyEscalate {
			// Escalation is the terminal fallback; there is nowhere further
			// to route.
			return fmt.Errorf("escalation failed for %s: %w", task.MessageID, execErr)
		}
		return e.escalateFailure(ctx, task, category,
			fmt.Sprintf("%s executor failed: %v", decision.Strategy, execErr))
	}

	e.recorder.Record(ctx, task, category, decision.Strategy)
	metrics.ProcessingDuration.WithLabelValues(string(decision.Strategy)).Observe(time.Since(start).Seconds())
	return nil
}

func (e *Engine) execute(ctx context.Context, task *domain.FailedTask, decision domain.RecoveryDecision) error {
	switch decision.Strategy {
	case domain.StrategyRetry:
		return e.scheduler.Schedule(ctx, task, decision.Retry)
	case domain.StrategyPartialRetry:
		return e.partial.Execute(ctx, task, decision.Partial)
	case domain.StrategyFallback:
		return e.fallback.Execute(ctx, task, decision.Fallback)
	case domain.StrategyEscalate:
		return e.notifier.Escalate(ctx, task, decision.Reason)
	default:
		return fmt.Errorf("unknown strategy %q", decision.Strategy)
	}
}

// escalateFailure routes an engine-level failure to operations. It uses a
// fresh deadline detached from the (possibly expired) per-message context.
func (e *Engine) escalateFailure(ctx context.Context, task *domain.FailedTask, category domain.ErrorCategory, reason string) error {
	escCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := e.notifier.Escalate(escCtx, task, reason); err != nil {
		return fmt.Errorf("escalation failed for %s: %w", task.MessageID, err)
	}

	e.recorder.Record(escCtx, task, category, domain.StrategyEscalate)
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
