package storage

import (
	"context"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// SampleRepository stores append-only metric samples for aggregation.
type SampleRepository interface {
	// Add appends one sample
	Add(ctx context.Context, sample *domain.MetricSample) error

	// ListSince returns all samples recorded at or after the given time
	ListSince(ctx context.Context, since time.Time) ([]*domain.MetricSample, error)

	// Count returns the number of samples recorded at or after the given time
	Count(ctx context.Context, since time.Time) (int, error)

	// DeleteBefore removes samples older than the cutoff, returning how many
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
