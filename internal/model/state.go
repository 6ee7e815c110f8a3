package model

// TaskPhase is the coarse lifecycle position of a task.
type TaskPhase string

const (
	PhasePending    TaskPhase = "pending"
	PhaseInProgress TaskPhase = "in_progress"
	PhaseSucceeded  TaskPhase = "succeeded"
	PhaseFailed     TaskPhase = "failed"
)

// Error kinds carried by failed task states.
const (
	ErrValidation    = "validation_error"
	ErrConfiguration = "configuration_error"
	ErrWorkspace     = "workspace_error"
	ErrInternal      = "internal_error"
)

// TaskState is a reportable snapshot of task progress. Stage is a
// human-readable label with no control semantics.
type TaskState struct {
	Phase     TaskPhase
	Stage     string
	Summary   string
	ErrorKind string
	Detail    string
}

func Pending() TaskState {
	return TaskState{Phase: PhasePending}
}

func InProgress(stage string) TaskState {
	return TaskState{Phase: PhaseInProgress, Stage: stage}
}

func Succeeded(summary string) TaskState {
	return TaskState{Phase: PhaseSucceeded, Summary: summary}
}

func Failed(kind, detail string) TaskState {
	return TaskState{Phase: PhaseFailed, ErrorKind: kind, Detail: detail}
}
