package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/triage/internal/core/config"
	"github.com/vietddude/triage/internal/core/worker"
	"github.com/vietddude/triage/internal/infra/agent"
	"github.com/vietddude/triage/internal/infra/orchestrator"
	"github.com/vietddude/triage/internal/infra/redisq"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/infra/storage/memory"
	"github.com/vietddude/triage/internal/infra/storage/postgres"
	"github.com/vietddude/triage/internal/infra/ticket"
	"github.com/vietddude/triage/internal/recovery/engine"
	"github.com/vietddude/triage/internal/recovery/escalate"
	"github.com/vietddude/triage/internal/recovery/fallback"
	"github.com/vietddude/triage/internal/recovery/metrics"
	"github.com/vietddude/triage/internal/recovery/ops"
	"github.com/vietddude/triage/internal/recovery/partial"
	"github.com/vietddude/triage/internal/recovery/retrysched"
	"github.com/vietddude/triage/internal/recovery/strategy"
)

// Triage is the main application struct that manages the recovery engine
// lifecycle.
type Triage struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	opsServer    *ops.Server
	pruner       *worker.Pruner
	db           *postgres.DB
	redisClient  *redisq.Client
	orchestrator *orchestrator.Client
	log          *slog.Logger
}

// New creates a new Triage instance with all dependencies initialized.
func New(cfg *config.AppConfig) (*Triage, error) {
	// 1. Initialize Redis (queue + notification channel)
	redisClient, err := redisq.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	queue := redisq.NewTaskQueue(redisClient, cfg.Queue.Name, cfg.Queue.DedupWindow)
	channel := redisq.NewNotifyChannel(redisClient)

	// 2. Initialize Storage
	var sampleRepo storage.SampleRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		sampleRepo = postgres.NewSampleRepo(db)
		slog.Info("Using PostgreSQL sample storage")
	} else {
		sampleRepo = memory.NewSampleRepo()
		slog.Info("Using Memory sample storage")
	}

	// 3. Initialize Ports
	var orch partial.Orchestrator
	var orchClient *orchestrator.Client
	if cfg.Orchestrator.Endpoint != "" {
		orchClient, err = orchestrator.NewClient(context.Background(), cfg.Orchestrator.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to init orchestrator client: %w", err)
		}
		orch = orchClient
	} else {
		orch = &LogOrchestrator{}
		slog.Warn("No orchestrator endpoint configured, partial retries are logged only")
	}

	var invoker fallback.Invoker
	if cfg.Agents.Endpoint != "" {
		invoker = agent.NewHTTPInvoker(cfg.Agents.Endpoint, cfg.Agents.Timeout)
	} else {
		invoker = &LogInvoker{}
		slog.Warn("No agent gateway configured, fallbacks are logged only")
	}

	var ticketer escalate.Ticketer
	if cfg.Ticketing.Endpoint != "" {
		ticketer = ticket.NewHTTPTicketer(cfg.Ticketing.Endpoint, cfg.Ticketing.Token, cfg.Agents.Timeout)
	}

	// 4. Initialize Engine Components
	selector := strategy.New(cfg.Strategy, cfg.Rules, cfg.Fallback)
	scheduler := retrysched.NewScheduler(queue)
	partialExec := partial.NewExecutor(orch, cfg.Orchestrator.Definition)
	fallbackExec := fallback.NewExecutor(invoker)
	notifier := escalate.NewNotifier(channel, ticketer, cfg.Notify.Topic)
	recorder := metrics.NewRecorder(sampleRepo)

	eng := engine.New(
		cfg.Engine,
		queue,
		selector,
		scheduler,
		partialExec,
		fallbackExec,
		notifier,
		recorder,
	)

	opsServer := ops.NewServer(
		cfg.Server.Port,
		selector,
		partialExec,
		fallbackExec,
		notifier,
		recorder,
	)

	pruner := worker.NewPruner(cfg.Retention, sampleRepo)

	return &Triage{
		cfg:          cfg,
		engine:       eng,
		opsServer:    opsServer,
		pruner:       pruner,
		db:           db,
		redisClient:  redisClient,
		orchestrator: orchClient,
		log:          slog.Default(),
	}, nil
}

// Start starts the engine and all its components.
func (t *Triage) Start(ctx context.Context) error {
	go func() {
		if err := t.opsServer.Start(); err != nil {
			t.log.Error("Ops server failed", "error", err)
		}
	}()

	go func() {
		if err := t.engine.Run(ctx); err != nil {
			t.log.Error("Recovery engine failed", "error", err)
		}
	}()

	go t.pruner.Start(ctx)

	return nil
}

// Stop stops the engine.
func (t *Triage) Stop(ctx context.Context) error {
	t.log.Info("Stopping triage...")

	if t.orchestrator != nil {
		if err := t.orchestrator.Close(); err != nil {
			t.log.Warn("Failed to close orchestrator connection", "error", err)
		}
	}

	if t.redisClient != nil {
		if err := t.redisClient.Close(); err != nil {
			t.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if t.db != nil {
		if err := t.db.Close(); err != nil {
			t.log.Warn("Failed to close database", "error", err)
		}
	}

	return t.opsServer.Stop(ctx)
}

// LogOrchestrator implements the orchestrator port for stdout logging.
type LogOrchestrator struct{}

func (o *LogOrchestrator) StartExecution(ctx context.Context, definition, name string, input map[string]any) (string, error) {
	fmt.Printf("[EXECUTION] %s: %s\n", definition, name)
	return name, nil
}

// LogInvoker implements the capability-provider port for stdout logging.
type LogInvoker struct{}

func (i *LogInvoker) Invoke(ctx context.Context, provider, method string, input map[string]any) (map[string]any, error) {
	fmt.Printf("[INVOKE] %s.%s\n", provider, method)
	return nil, nil
}
