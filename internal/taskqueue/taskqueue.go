package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"slack-claude-runner/internal/model"
)

// TypeProcessMessage is the queue task type for one inbound Slack event.
const TypeProcessMessage = "slack:process_message"

// Processor runs one task attempt end to end.
type Processor interface {
	Process(ctx context.Context, event model.InboundEvent) error
}

// NewTask encodes an inbound event as a queue task. The pipeline performs no
// internal retries, so a failed attempt is terminal (MaxRetry 0); workspace
// acquisition is idempotent on the base clone, so a re-enqueued event would
// simply run in a fresh workspace.
func NewTask(event model.InboundEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return asynq.NewTask(TypeProcessMessage, payload, asynq.MaxRetry(0), asynq.Timeout(15*time.Minute)), nil
}

// Enqueue submits the event for background processing.
func Enqueue(ctx context.Context, client *asynq.Client, event model.InboundEvent) (*asynq.TaskInfo, error) {
	task, err := NewTask(event)
	if err != nil {
		return nil, err
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	return info, nil
}

// ClientEnqueuer adapts an asynq client to the web layer's Enqueuer.
type ClientEnqueuer struct {
	Client *asynq.Client
}

func (e ClientEnqueuer) Enqueue(ctx context.Context, event model.InboundEvent) error {
	_, err := Enqueue(ctx, e.Client, event)
	return err
}

// NewMux wires the worker-side handler.
func NewMux(p Processor, log *slog.Logger) *asynq.ServeMux {
	if log == nil {
		log = slog.Default()
	}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessMessage, func(ctx context.Context, t *asynq.Task) error {
		var event model.InboundEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		log.Info("processing message task", "channel", event.Channel, "ts", event.Timestamp)
		return p.Process(ctx, event)
	})
	return mux
}
