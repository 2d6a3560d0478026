package domain

import "time"

// MetricSample records the outcome of one processed message. Append-only,
// used only for aggregation.
type MetricSample struct {
	Agent     string        `json:"agent"`
	Category  ErrorCategory `json:"category"`
	Strategy  Strategy      `json:"strategy"`
	Timestamp time.Time     `json:"timestamp"`
}
