package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeRecord is the asynq task carrying one Record.
	TaskTypeRecord = "audit:record"
	// QueueName is the queue audit tasks are enqueued on.
	QueueName = "audit"
)

// Enqueuer is the subset of *asynq.Client used by QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands records to the worker through asynq.
type QueueSink struct {
	client Enqueuer
}

// NewQueueSink wraps an asynq client.
func NewQueueSink(client Enqueuer) *QueueSink {
	return &QueueSink{client: client}
}

// NewTask builds the asynq task for rec.
func NewTask(rec Record) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, data, asynq.Queue(QueueName), asynq.MaxRetry(10)), nil
}

func (s *QueueSink) Write(ctx context.Context, rec Record) error {
	task, err := NewTask(rec)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("audit: enqueue: %w", err)
	}
	return nil
}

// TaskHandler drains TaskTypeRecord tasks into sink.
func TaskHandler(sink Sink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec Record
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			return fmt.Errorf("audit: decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return sink.Write(ctx, rec)
	}
}
