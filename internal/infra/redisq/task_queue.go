package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/triage/internal/core/domain"
)

const (
	// payloadTTL bounds how long an unprocessed task body is kept.
	payloadTTL = 24 * time.Hour

	// visibilityTimeout is how long a received message stays invisible before
	// it is reclaimed for redelivery.
	visibilityTimeout = 5 * time.Minute
)

// TaskQueue is a Redis-backed dead-letter queue with delayed delivery.
// Messages live in a sorted set scored by ready-at time; payloads are stored
// per message id with a TTL. Delivery is at-least-once: received messages
// move to a processing set and are reclaimed if not acked in time.
type TaskQueue struct {
	rdb         *redis.Client
	queue       string
	dedupWindow time.Duration
}

// NewTaskQueue creates a queue bound to one dead-letter queue name. A
// non-zero dedupWindow suppresses duplicate deliveries of the same message id
// and attempt within the window.
func NewTaskQueue(client *Client, queue string, dedupWindow time.Duration) *TaskQueue {
	return &TaskQueue{
		rdb:         client.rdb,
		queue:       queue,
		dedupWindow: dedupWindow,
	}
}

// Key helpers
func (q *TaskQueue) readyKey() string {
	return fmt.Sprintf("dlq:%s", q.queue)
}

func (q *TaskQueue) processingKey() string {
	return fmt.Sprintf("dlq_processing:%s", q.queue)
}

func (q *TaskQueue) taskKey(id string) string {
	return fmt.Sprintf("dlq_task:%s:%s", q.queue, id)
}

func (q *TaskQueue) dedupKey(id string, attempt int) string {
	return fmt.Sprintf("dlq_seen:%s:%s:%d", q.queue, id, attempt)
}

// Publish enqueues a task, visible after the given delay.
func (q *TaskQueue) Publish(ctx context.Context, queue string, task *domain.FailedTask, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := fmt.Sprintf("dlq_task:%s:%s", queue, task.MessageID)
	if err := q.rdb.Set(ctx, key, data, payloadTTL).Err(); err != nil {
		return fmt.Errorf("failed to set task payload: %w", err)
	}

	readyAt := float64(time.Now().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, fmt.Sprintf("dlq:%s", queue), redis.Z{
		Score:  readyAt,
		Member: task.MessageID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// ReceiveBatch returns up to max due tasks, making them invisible until acked
// or the visibility timeout expires.
func (q *TaskQueue) ReceiveBatch(ctx context.Context, max int) ([]*domain.FailedTask, error) {
	if err := q.reclaimExpired(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	ids, err := q.rdb.ZRangeByScore(ctx, q.readyKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: int64(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}

	tasks := make([]*domain.FailedTask, 0, len(ids))
	for _, id := range ids {
		// Move to the processing set regardless of payload state so a broken
		// entry cannot wedge the queue head.
		if err := q.rdb.ZRem(ctx, q.readyKey(), id).Err(); err != nil {
			return nil, fmt.Errorf("zrem failed: %w", err)
		}
		deadline := float64(now.Add(visibilityTimeout).Unix())
		if err := q.rdb.ZAdd(ctx, q.processingKey(), redis.Z{Score: deadline, Member: id}).Err(); err != nil {
			return nil, fmt.Errorf("zadd processing failed: %w", err)
		}

		data, err := q.rdb.Get(ctx, q.taskKey(id)).Bytes()
		if err == redis.Nil {
			// Payload expired; drop the orphaned id.
			q.rdb.ZRem(ctx, q.processingKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get task payload: %w", err)
		}

		var task domain.FailedTask
		if err := json.Unmarshal(data, &task); err != nil {
			q.rdb.ZRem(ctx, q.processingKey(), id)
			continue
		}

		if q.dedupWindow > 0 {
			fresh, err := q.rdb.SetNX(ctx, q.dedupKey(task.MessageID, task.Attempt), "1", q.dedupWindow).Result()
			if err == nil && !fresh {
				// Duplicate delivery within the window; ack it away.
				q.rdb.ZRem(ctx, q.processingKey(), id)
				q.rdb.Del(ctx, q.taskKey(id))
				continue
			}
		}

		tasks = append(tasks, &task)
	}

	return tasks, nil
}

// Ack acknowledges successful processing of one message.
func (q *TaskQueue) Ack(ctx context.Context, messageID string) error {
	if err := q.rdb.ZRem(ctx, q.processingKey(), messageID).Err(); err != nil {
		return fmt.Errorf("failed to remove from processing: %w", err)
	}
	if err := q.rdb.Del(ctx, q.taskKey(messageID)).Err(); err != nil {
		return fmt.Errorf("failed to delete task payload: %w", err)
	}
	return nil
}

// Depth returns the number of tasks waiting in the queue.
func (q *TaskQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}

// reclaimExpired moves messages whose visibility timeout passed back into the
// ready set.
func (q *TaskQueue) reclaimExpired(ctx context.Context) error {
	now := time.Now().Unix()
	ids, err := q.rdb.ZRangeByScore(ctx, q.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore processing failed: %w", err)
	}

	for _, id := range ids {
		if err := q.rdb.ZRem(ctx, q.processingKey(), id).Err(); err != nil {
			return fmt.Errorf("zrem processing failed: %w", err)
		}
		if err := q.rdb.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(now), Member: id}).Err(); err != nil {
			return fmt.Errorf("requeue failed: %w", err)
		}
	}
	return nil
}
