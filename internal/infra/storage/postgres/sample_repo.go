package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// SampleRepo implements storage.SampleRepository using PostgreSQL.
type SampleRepo struct {
	db *DB
}

// NewSampleRepo creates a new PostgreSQL metric sample repository.
func NewSampleRepo(db *DB) *SampleRepo {
	return &SampleRepo{db: db}
}

// Add appends one sample.
func (r *SampleRepo) Add(ctx context.Context, sample *domain.MetricSample) error {
	query := `
		INSERT INTO metric_samples (agent, category, strategy, recorded_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query,
		sample.Agent,
		string(sample.Category),
		string(sample.Strategy),
		sample.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to add metric sample: %w", err)
	}
	return nil
}

// ListSince returns all samples recorded at or after the given time.
func (r *SampleRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.MetricSample, error) {
	query := `
		SELECT agent, category, strategy, recorded_at
		FROM metric_samples
		WHERE recorded_at >= $1
		ORDER BY recorded_at ASC
	`

	var rows []struct {
		Agent      string    `db:"agent"`
		Category   string    `db:"category"`
		Strategy   string    `db:"strategy"`
		RecordedAt time.Time `db:"recorded_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list metric samples: %w", err)
	}

	samples := make([]*domain.MetricSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, &domain.MetricSample{
			Agent:     row.Agent,
			Category:  domain.ErrorCategory(row.Category),
			Strategy:  domain.Strategy(row.Strategy),
			Timestamp: row.RecordedAt,
		})
	}
	return samples, nil
}

// Count returns the number of samples recorded at or after the given time.
func (r *SampleRepo) Count(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM metric_samples WHERE recorded_at >= $1`
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count metric samples: %w", err)
	}
	return count, nil
}

// DeleteBefore removes samples older than the cutoff.
func (r *SampleRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete metric samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
