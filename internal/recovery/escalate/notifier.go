package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// Channel publishes structured alerts to an operations notification topic.
type Channel interface {
	Publish(ctx context.Context, topic, subject string, body []byte) error
}

// Ticketer opens tracking tickets. Only reachable from the manual surface.
type Ticketer interface {
	CreateTicket(ctx context.Context, details map[string]any, priority string) (string, error)
}

// Alert is the structured body published on escalation.
type Alert struct {
	MessageID     string              `json:"message_id"`
	Queue         string              `json:"queue"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	AgentName     string              `json:"agent_name"`
	Reason        string              `json:"reason"`
	Severity      string              `json:"severity"`
	Attempt       int                 `json:"attempt"`
	Error         domain.ErrorDetails `json:"error"`
	Payload       map[string]any      `json:"payload,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// Notifier is the terminal, always-safe recovery path: every unexpected
// failure anywhere in the engine routes here instead of propagating.
type Notifier struct {
	channel  Channel
	ticketer Ticketer
	topic    string
	log      *slog.Logger
}

// NewNotifier creates an escalation notifier. The ticketer may be nil when no
// ticketing endpoint is configured.
func NewNotifier(channel Channel, ticketer Ticketer, topic string) *Notifier {
	return &Notifier{
		channel:  channel,
		ticketer: ticketer,
		topic:    topic,
		log:      slog.Default().With("component", "escalation"),
	}
}

// Escalate publishes one alert with full failure context.
func (n *Notifier) Escalate(ctx context.Context, task *domain.FailedTask, reason string) error {
	return n.EscalateSeverity(ctx, task, reason, "high")
}

// EscalateSeverity publishes one alert with an explicit severity.
func (n *Notifier) EscalateSeverity(ctx context.Context, task *domain.FailedTask, reason, severity string) error {
	alert := Alert{
		MessageID:     task.MessageID,
		Queue:         task.Queue,
		CorrelationID: task.CorrelationID,
		AgentName:     task.AgentName,
		Reason:        reason,
		Severity:      severity,
		Attempt:       task.Attempt,
		Error:         task.Error,
		Payload:       task.Payload,
		Timestamp:     time.Now().UTC(),
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	subject := fmt.Sprintf("[%s] Recovery escalation: %s", severity, task.AgentName)
	if err := n.channel.Publish(ctx, n.topic, subject, body); err != nil {
		return fmt.Errorf("publish escalation for %s: %w", task.MessageID, err)
	}

	n.log.Warn("Escalated to operations",
		"message_id", task.MessageID,
		"agent", task.AgentName,
		"reason", reason,
	)
	return nil
}

// OpenTicket creates a tracking ticket and returns its identifier.
func (n *Notifier) OpenTicket(ctx context.Context, details map[string]any, priority string) (string, error) {
	if n.ticketer == nil {
		return "", fmt.Errorf("no ticketing endpoint configured")
	}

	id, err := n.ticketer.CreateTicket(ctx, details, priority)
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}

	n.log.Info("Opened tracking ticket", "ticket_id", id, "priority", priority)
	return id, nil
}
