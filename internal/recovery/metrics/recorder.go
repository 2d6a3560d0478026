package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
)

// Recorder increments the outcome counters and appends a sample per processed
// message. Recording is best-effort: failures are logged and never surfaced
// to the caller, so metrics can never affect a task's outcome.
type Recorder struct {
	repo storage.SampleRepository
	log  *slog.Logger
}

// NewRecorder creates a metrics recorder.
func NewRecorder(repo storage.SampleRepository) *Recorder {
	return &Recorder{
		repo: repo,
		log:  slog.Default().With("component", "metrics"),
	}
}

// Record registers one processed message outcome.
func (r *Recorder) Record(ctx context.Context, task *domain.FailedTask, category domain.ErrorCategory, strategy domain.Strategy) {
	FailuresTotal.WithLabelValues(task.AgentName, string(category)).Inc()
	RecoveriesTotal.WithLabelValues(string(strategy), task.AgentName).Inc()
	if strategy == domain.StrategyEscalate {
		EscalationsTotal.WithLabelValues(task.AgentName).Inc()
	}

	sample := &domain.MetricSample{
		Agent:     task.AgentName,
		Category:  category,
		Strategy:  strategy,
		Timestamp: time.Now().UTC(),
	}
	if err := r.repo.Add(ctx, sample); err != nil {
		r.log.Warn("Failed to record metric sample", "message_id", task.MessageID, "error", err)
	}
}

// HourlyBucket counts samples within one hour of the trailing window.
type HourlyBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// Statistics aggregates samples over a trailing window.
type Statistics struct {
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Total       int            `json:"total"`
	ByCategory  map[string]int `json:"by_category"`
	ByStrategy  map[string]int `json:"by_strategy"`
	ByAgent     map[string]int `json:"by_agent"`
	Hourly      []HourlyBucket `json:"hourly"`
}

// Statistics aggregates the sample store over the trailing window, bucketed
// by hour.
func (r *Recorder) Statistics(ctx context.Context, window time.Duration) (*Statistics, error) {
	now := time.Now().UTC()
	since := now.Add(-window)

	samples, err := r.repo.ListSince(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		WindowStart: since,
		WindowEnd:   now,
		Total:       len(samples),
		ByCategory:  make(map[string]int),
		ByStrategy:  make(map[string]int),
		ByAgent:     make(map[string]int),
	}

	hourly := make(map[time.Time]int)
	for _, s := range samples {
		stats.ByCategory[string(s.Category)]++
		stats.ByStrategy[string(s.Strategy)]++
		stats.ByAgent[s.Agent]++
		hourly[s.Timestamp.Truncate(time.Hour)]++
	}

	hours := make([]time.Time, 0, len(hourly))
	for h := range hourly {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	for _, h := range hours {
		stats.Hourly = append(stats.Hourly, HourlyBucket{Hour: h, Count: hourly[h]})
	}

	return stats, nil
}
