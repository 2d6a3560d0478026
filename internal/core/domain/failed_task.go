package domain

import "time"

// ErrorCategory classifies why a task failed.
type ErrorCategory string

const (
	CategoryTimeout            ErrorCategory = "timeout"
	CategoryThrottling         ErrorCategory = "throttling"
	CategoryServiceUnavailable ErrorCategory = "service_unavailable"
	CategoryValidation         ErrorCategory = "validation"
	CategoryResourceNotFound   ErrorCategory = "resource_not_found"
	CategoryAccessDenied       ErrorCategory = "access_denied"
	CategoryInternalError      ErrorCategory = "internal_error"
	CategoryRateLimit          ErrorCategory = "rate_limit"
	CategoryUnknown            ErrorCategory = "unknown"
)

// ErrorDetails describes a single failure. Immutable once created.
type ErrorDetails struct {
	Category   ErrorCategory  `json:"category,omitempty"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
}

// FailedTask represents one dead-lettered task message.
type FailedTask struct {
	MessageID     string         `json:"message_id"`
	Queue         string         `json:"queue"`
	CorrelationID string         `json:"correlation_id"`
	AgentName     string         `json:"agent_name"`
	Attempt       int            `json:"attempt"`
	FailedAt      time.Time      `json:"failed_at"`
	Reason        string         `json:"reason"`
	Payload       map[string]any `json:"payload"`
	Error         ErrorDetails   `json:"error"`
}
