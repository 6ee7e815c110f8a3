package taskqueue

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-claude-runner/internal/model"
)

type recordingProcessor struct {
	events []model.InboundEvent
	err    error
}

func (r *recordingProcessor) Process(_ context.Context, event model.InboundEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMuxDispatchesToProcessor(t *testing.T) {
	event := model.InboundEvent{
		Channel:   "C1",
		Text:      "fix the bug",
		Timestamp: "100.1",
		Files:     []model.FileRef{{Name: "a.txt", DownloadURL: "https://files/a"}},
	}
	task, err := NewTask(event)
	require.NoError(t, err)
	assert.Equal(t, TypeProcessMessage, task.Type())

	proc := &recordingProcessor{}
	mux := NewMux(proc, nil)
	require.NoError(t, mux.ProcessTask(context.Background(), task))

	require.Len(t, proc.events, 1)
	assert.Equal(t, event, proc.events[0])
}

func TestMuxRejectsBadPayload(t *testing.T) {
	proc := &recordingProcessor{}
	mux := NewMux(proc, nil)

	bad := asynq.NewTask(TypeProcessMessage, []byte("{not json"))
	require.Error(t, mux.ProcessTask(context.Background(), bad))
	assert.Empty(t, proc.events)
}
