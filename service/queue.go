package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	TypeSceneBatch = "scene:batch"
)

// TaskPayload is the body of a scene:batch queue task.
type TaskPayload struct {
	TaskID string `json:"task_id"`
}

// Queue puts scene batches on the asynq default queue.
type Queue struct {
	client  *asynq.Client
	timeout time.Duration
	log     zerolog.Logger
}

// InitQueue connects the asynq client. timeout bounds one batch run and
// should cover the whole polling window.
func InitQueue(redis asynq.RedisClientOpt, timeout time.Duration, log zerolog.Logger) *Queue {
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	return &Queue{client: asynq.NewClient(redis), timeout: timeout, log: log}
}

func (q *Queue) EnqueueBatch(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(TaskPayload{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeSceneBatch, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(q.timeout),
		asynq.Retention(24*time.Hour),
	)

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	q.log.Info().Str("task_id", taskID).Str("queue_id", info.ID).Msg("batch enqueued")
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
