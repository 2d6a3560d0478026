package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NotifyChannel publishes operations alerts over Redis pub/sub. Alerts are
// also appended to a capped list so they survive when no subscriber is
// attached.
type NotifyChannel struct {
	client *Client
}

// historyLen bounds the retained alert backlog per topic.
const historyLen = 1000

// NewNotifyChannel creates a notification channel.
func NewNotifyChannel(client *Client) *NotifyChannel {
	return &NotifyChannel{client: client}
}

// Publish sends one structured alert to a topic.
func (c *NotifyChannel) Publish(ctx context.Context, topic, subject string, body []byte) error {
	envelope, err := json.Marshal(map[string]any{
		"subject":      subject,
		"body":         json.RawMessage(body),
		"published_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert envelope: %w", err)
	}

	if err := c.client.rdb.Publish(ctx, topic, envelope).Err(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	historyKey := fmt.Sprintf("alerts:%s", topic)
	if err := c.client.rdb.LPush(ctx, historyKey, envelope).Err(); err != nil {
		return fmt.Errorf("lpush alert history failed: %w", err)
	}
	if err := c.client.rdb.LTrim(ctx, historyKey, 0, historyLen-1).Err(); err != nil {
		return fmt.Errorf("ltrim alert history failed: %w", err)
	}

	return nil
}
