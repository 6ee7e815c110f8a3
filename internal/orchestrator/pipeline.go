package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"slack-claude-runner/internal/claude"
	"slack-claude-runner/internal/credentials"
	"slack-claude-runner/internal/model"
	"slack-claude-runner/internal/prompt"
	"slack-claude-runner/internal/workspace"
)

// Status reactions applied to the originating message.
const (
	reactionSuccess = "white_check_mark"
	reactionFailure = "x"
)

// TaskError is what the pipeline hands back to the queue layer when a task
// fails; the user has already been told by the time it is returned.
type TaskError struct {
	Kind   string
	Detail string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Credentials is the read-only credential source.
type Credentials interface {
	GitHub() (credentials.GitHub, bool)
}

// Messenger covers everything the pipeline needs from the chat side.
type Messenger interface {
	PostMessage(ctx context.Context, channel, text, threadTS string) error
	AddReaction(ctx context.Context, channel, timestamp, name string) error
	ThreadHistory(ctx context.Context, channel, threadTS string) ([]model.Turn, error)
	FetchAttachments(ctx context.Context, files []model.FileRef, workspaceDir string) []string
}

// Workspaces issues and disposes isolated working copies.
type Workspaces interface {
	Acquire(ctx context.Context, repository, accessToken string) (*workspace.Workspace, error)
	Release(ctx context.Context, ws *workspace.Workspace)
}

// Invoker runs the analysis tool and renders its outcome.
type Invoker interface {
	Run(ctx context.Context, dir, promptText, systemPrompt string) claude.Result
	Text(res claude.Result) string
}

// Reporter observes task state transitions. Stages are descriptive only.
type Reporter func(state model.TaskState)

// Pipeline sequences one task: workspace, attachments, context, analysis,
// delivery, teardown. One Process call per queue delivery; it never retries
// internally.
type Pipeline struct {
	Creds      Credentials
	Slack      Messenger
	Workspaces Workspaces
	Claude     Invoker
	Report     Reporter
	Log        *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func (p *Pipeline) report(state model.TaskState) {
	p.logger().Info("task state", "phase", string(state.Phase), "stage", state.Stage, "error_kind", state.ErrorKind)
	if p.Report != nil {
		p.Report(state)
	}
}

// Process runs the full pipeline for one inbound event. Any acquired
// workspace is released on every path out of this function.
func (p *Pipeline) Process(ctx context.Context, event model.InboundEvent) error {
	p.report(model.Pending())
	p.report(model.InProgress("Starting processing"))

	if strings.TrimSpace(event.Text) == "" {
		return p.fail(ctx, event, model.ErrValidation, "no message text provided",
			"❌ I encountered an error: no message text provided")
	}

	creds, ok := p.Creds.GitHub()
	if !ok {
		return p.fail(ctx, event, model.ErrConfiguration, "repository not connected",
			"❌ GitHub repository not connected. Please connect a repository first.")
	}

	p.report(model.InProgress("Setting up workspace"))
	ws, err := p.Workspaces.Acquire(ctx, creds.Repository, creds.AccessToken)
	if err != nil {
		return p.fail(ctx, event, model.ErrWorkspace, err.Error(), workspaceFailureText(err))
	}
	defer p.Workspaces.Release(ctx, ws)
	p.report(model.InProgress(fmt.Sprintf("Repository %s prepared", creds.Repository)))

	var attachments []string
	if len(event.Files) > 0 {
		p.report(model.InProgress("Downloading attachments"))
		attachments = p.Slack.FetchAttachments(ctx, event.Files, ws.Path)
		if len(attachments) > 0 {
			p.report(model.InProgress(fmt.Sprintf("%d attachments downloaded", len(attachments))))
		}
	}

	var history []model.Turn
	if root := event.ThreadRoot(); root != "" {
		p.report(model.InProgress("Gathering thread context"))
		turns, err := p.Slack.ThreadHistory(ctx, event.Channel, root)
		if err != nil {
			// Missing context degrades the answer, it never aborts the task.
			p.logger().Warn("thread history unavailable", "error", err)
		} else {
			history = turns
		}
	}

	p.report(model.InProgress("Running Claude Code analysis"))
	res := p.Claude.Run(ctx, ws.Path, prompt.Build(history, event.Text, attachments), prompt.SystemPrompt)
	body := p.Claude.Text(res)

	if err := p.Slack.PostMessage(ctx, event.Channel, body, event.ThreadRoot()); err != nil {
		p.logger().Error("failed to deliver response", "error", err)
	}

	reaction := reactionSuccess
	if res.Kind != claude.Success {
		reaction = reactionFailure
	}
	if err := p.Slack.AddReaction(ctx, event.Channel, event.Timestamp, reaction); err != nil {
		p.logger().Warn("failed to add reaction", "reaction", reaction, "error", err)
	}

	p.report(model.Succeeded(summarize(body)))
	return nil
}

// fail delivers the user-facing explanation, marks the original message and
// returns the error for the queue layer's bookkeeping.
func (p *Pipeline) fail(ctx context.Context, event model.InboundEvent, kind, detail, userMsg string) error {
	if err := p.Slack.PostMessage(ctx, event.Channel, userMsg, event.ThreadRoot()); err != nil {
		p.logger().Error("failed to deliver error response", "error", err)
	}
	if err := p.Slack.AddReaction(ctx, event.Channel, event.Timestamp, reactionFailure); err != nil {
		p.logger().Warn("failed to add reaction", "reaction", reactionFailure, "error", err)
	}
	p.report(model.Failed(kind, detail))
	return &TaskError{Kind: kind, Detail: detail}
}

// workspaceFailureText distinguishes git-level failures, whose stderr is
// worth showing, from generic acquisition faults.
func workspaceFailureText(err error) string {
	var gitErr *workspace.GitError
	if errors.As(err, &gitErr) {
		return "❌ Git operation failed: " + gitErr.Stderr
	}
	return "❌ I encountered an error: " + err.Error()
}

func summarize(body string) string {
	if len(body) > 500 {
		return body[:500] + "..."
	}
	return body
}
