package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// blockInterval bounds each BRPOP so ctx cancellation is observed promptly.
const blockInterval = 2 * time.Second

// RedisQueue is a Queue backed by Redis lists. Jobs are pushed to the
// queue list; results and failures land on companion lists so operators
// can inspect them.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue creates a RedisQueue on the given list name.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

// Ping verifies connectivity to the Redis server.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Enqueue pushes the job onto the queue list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available. Malformed payloads are skipped.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vals, err := q.client.BRPop(ctx, blockInterval, q.name).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue job: %w", err)
		}
		// BRPOP returns [key, value].
		if len(vals) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
			continue
		}
		return &job, nil
	}
}

// ReportResult pushes the result onto the results list.
func (q *RedisQueue) ReportResult(ctx context.Context, job Job, res Result) error {
	payload, err := json.Marshal(struct {
		Job Job `json:"job"`
		Result
	}{Job: job, Result: res})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := q.client.LPush(ctx, q.name+":results", payload).Err(); err != nil {
		return fmt.Errorf("report result: %w", err)
	}
	return nil
}

// ReportFailure pushes the failure onto the failures list.
func (q *RedisQueue) ReportFailure(ctx context.Context, job Job, reason string) error {
	payload, err := json.Marshal(Failure{Job: job, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	if err := q.client.LPush(ctx, q.name+":failures", payload).Err(); err != nil {
		return fmt.Errorf("report failure: %w", err)
	}
	return nil
}
