package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// SampleRepo implements storage.SampleRepository in memory. Used when no
// database is configured, and by tests.
type SampleRepo struct {
	mu      sync.RWMutex
	samples []*domain.MetricSample
}

// NewSampleRepo creates an in-memory metric sample repository.
func NewSampleRepo() *SampleRepo {
	return &SampleRepo{}
}

// Add appends one sample.
func (r *SampleRepo) Add(ctx context.Context, sample *domain.MetricSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sample
	r.samples = append(r.samples, &copied)
	return nil
}

// ListSince returns all samples recorded at or after the given time.
func (r *SampleRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.MetricSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.MetricSample, 0, len(r.samples))
	for _, s := range r.samples {
		if !s.Timestamp.Before(since) {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

// Count returns the number of samples recorded at or after the given time.
func (r *SampleRepo) Count(ctx context.Context, since time.Time) (int, error) {
	samples, err := r.ListSince(ctx, since)
	if err != nil {
		return 0, err
	}
	return len(samples), nil
}

// DeleteBefore removes samples older than the cutoff.
func (r *SampleRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.samples[:0]
	deleted := 0
	for _, s := range r.samples {
		if s.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	r.samples = kept
	return deleted, nil
}
