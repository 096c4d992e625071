package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues finance tasks.
type Client struct {
	client *asynq.Client
}

// NewClient connects an enqueue-only client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueStatusSweep enqueues a status sweep.
func (c *Client) EnqueueStatusSweep(ctx context.Context, payload StatusSweepPayload) (*asynq.TaskInfo, error) {
	task, err := NewStatusSweepTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueReportsWarmup enqueues a report warmup. Requests within a minute of
// each other collapse into one task.
func (c *Client) EnqueueReportsWarmup(ctx context.Context, payload ReportsWarmupPayload) (*asynq.TaskInfo, error) {
	task, err := NewReportsWarmupTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Unique(time.Minute))
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
