package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/triage/internal/infra/storage"
)

// Pruner deletes old metric samples based on the retention policy.
type Pruner struct {
	retention time.Duration
	repo      storage.SampleRepository
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.SampleRepository) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Calculate check interval (e.g., 10% of retention period, but max 1 hour)
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	n, err := p.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune metric samples", "error", err)
		return
	}
	if n > 0 {
		p.log.Debug("Pruned metric samples", "deleted", n)
	}
}
