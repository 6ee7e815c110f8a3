package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-claude-runner/internal/claude"
	"slack-claude-runner/internal/credentials"
	"slack-claude-runner/internal/model"
	"slack-claude-runner/internal/workspace"
)

type fakeCreds struct {
	gh credentials.GitHub
	ok bool
}

func (f fakeCreds) GitHub() (credentials.GitHub, bool) { return f.gh, f.ok }

type post struct {
	channel, text, threadTS string
}

type reaction struct {
	channel, timestamp, name string
}

type fakeMessenger struct {
	posts       []post
	reactions   []reaction
	postErr     error
	history     []model.Turn
	historyErr  error
	attachments []string
}

func (f *fakeMessenger) PostMessage(_ context.Context, channel, text, threadTS string) error {
	f.posts = append(f.posts, post{channel, text, threadTS})
	return f.postErr
}

func (f *fakeMessenger) AddReaction(_ context.Context, channel, timestamp, name string) error {
	f.reactions = append(f.reactions, reaction{channel, timestamp, name})
	return nil
}

func (f *fakeMessenger) ThreadHistory(context.Context, string, string) ([]model.Turn, error) {
	return f.history, f.historyErr
}

func (f *fakeMessenger) FetchAttachments(context.Context, []model.FileRef, string) []string {
	return f.attachments
}

type fakeWorkspaces struct {
	ws       *workspace.Workspace
	err      error
	acquired int
	released int
}

func (f *fakeWorkspaces) Acquire(context.Context, string, string) (*workspace.Workspace, error) {
	f.acquired++
	return f.ws, f.err
}

func (f *fakeWorkspaces) Release(context.Context, *workspace.Workspace) { f.released++ }

type fakeInvoker struct {
	res    claude.Result
	runs   int
	prompt string
}

func (f *fakeInvoker) Run(_ context.Context, _ string, promptText, _ string) claude.Result {
	f.runs++
	f.prompt = promptText
	return f.res
}

func (f *fakeInvoker) Text(res claude.Result) string { return claude.Runner{}.Text(res) }

func testEvent() model.InboundEvent {
	return model.InboundEvent{
		UserID:    "U1",
		Channel:   "C1",
		Text:      "fix the bug",
		Timestamp: "100.1",
		ThreadTS:  "100.1",
	}
}

func newPipeline(msgr *fakeMessenger, wss *fakeWorkspaces, inv *fakeInvoker, states *[]model.TaskState) *Pipeline {
	return &Pipeline{
		Creds:      fakeCreds{gh: credentials.GitHub{Repository: "acme/widget", AccessToken: "t"}, ok: true},
		Slack:      msgr,
		Workspaces: wss,
		Claude:     inv,
		Report:     func(s model.TaskState) { *states = append(*states, s) },
	}
}

func TestProcessSuccess(t *testing.T) {
	msgr := &fakeMessenger{}
	wss := &fakeWorkspaces{ws: &workspace.Workspace{Path: t.TempDir()}}
	inv := &fakeInvoker{res: claude.Result{Kind: claude.Success, Output: "Fixed."}}
	var states []model.TaskState

	err := newPipeline(msgr, wss, inv, &states).Process(context.Background(), testEvent())
	require.NoError(t, err)

	require.Len(t, msgr.posts, 1)
	assert.Equal(t, post{"C1", "Fixed.", "100.1"}, msgr.posts[0])
	require.Len(t, msgr.reactions, 1)
	assert.Equal(t, reaction{"C1", "100.1", "white_check_mark"}, msgr.reactions[0])
	assert.Equal(t, 1, wss.released)
	require.NotEmpty(t, states)
	assert.Equal(t, model.PhasePending, states[0].Phase)
	assert.Equal(t, model.PhaseSucceeded, states[len(states)-1].Phase)
}

func TestProcessToolTimeout(t *testing.T) {
	msgr := &fakeMessenger{}
	wss := &fakeWorkspaces{ws: &workspace.Workspace{Path: t.TempDir()}}
	inv := &fakeInvoker{res: claude.Result{Kind: claude.Timeout}}
	var states []model.TaskState

	err := newPipeline(msgr, wss, inv, &states).Process(context.Background(), testEvent())
	require.NoError(t, err)

	require.Len(t, msgr.posts, 1)
	assert.Contains(t, msgr.posts[0].text, "timed out after 5 minutes")
	require.Len(t, msgr.reactions, 1)
	assert.Equal(t, "x", msgr.reactions[0].name)
	assert.Equal(t, 1, wss.released)
}

func TestProcessNoCredentials(t *testing.T) {
	msgr := &fakeMessenger{}
	wss := &fakeWorkspaces{}
	inv := &fakeInvoker{}
	var states []model.TaskState
	p := newPipeline(msgr, wss, inv, &states)
	p.Creds = fakeCreds{}

	err := p.Process(context.Background(), testEvent())
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, model.ErrConfiguration, taskErr.Kind)

	assert.Zero(t, wss.acquired)
	require.Len(t, msgr.posts, 1)
	assert.Contains(t, msgr.posts[0].text, "repository not connected")
	require.Len(t, msgr.reactions, 1)
	assert.Equal(t, "x", msgr.reactions[0].name)
}

func TestProcessEmptyText(t *testing.T) {
	msgr := &fakeMessenger{}
	wss := &fakeWorkspaces{}
	var states []model.TaskState
	p := newPipeline(msgr, wss, &fakeInvoker{}, &states)

	ev := testEvent()
	ev.Text = "   "
	err := p.Process(context.Background(), ev)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, model.ErrValidation, taskErr.Kind)
	assert.Zero(t, wss.acquired)
}

func TestProcessGitFailure(t *testing.T) {
	msgr := &fakeMessenger{}
	gitErr := &workspace.GitError{Args: []string{"fetch", "--all"}, Stderr: "fatal: could not read from remote", Err: errors.New("exit status 128")}
	wss := &fakeWorkspaces{err: gitErr}
	inv := &fakeInvoker{}
	var states []model.TaskState

	err := newPipeline(msgr, wss, inv, &states).Process(context.Background(), testEvent())
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, model.ErrWorkspace, taskErr.Kind)

	require.Len(t, msgr.posts, 1)
	assert.Equal(t, "❌ Git operation failed: fatal: could not read from remote", msgr.posts[0].text)
	assert.Zero(t, inv.runs)
	assert.Equal(t, model.PhaseFailed, states[len(states)-1].Phase)
}

func TestProcessCloneFailureHidesAccessToken(t *testing.T) {
	msgr := &fakeMessenger{}
	gitErr := &workspace.GitError{
		Args:   []string{"clone", "https://s3cr3t-token@github.com/acme/widget.git", "/base"},
		Stderr: "fatal: could not resolve host: github.com",
		Err:    errors.New("exit status 128"),
	}
	wss := &fakeWorkspaces{err: fmt.Errorf("%w: %w", workspace.ErrRepoUnavailable, gitErr)}
	var states []model.TaskState

	err := newPipeline(msgr, wss, &fakeInvoker{}, &states).Process(context.Background(), testEvent())
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.NotContains(t, taskErr.Detail, "s3cr3t-token")

	require.Len(t, msgr.posts, 1)
	assert.Equal(t, "❌ Git operation failed: fatal: could not resolve host: github.com", msgr.posts[0].text)
	assert.NotContains(t, msgr.posts[0].text, "s3cr3t-token")
}

func TestProcessAttachmentsAndHistoryReachPrompt(t *testing.T) {
	msgr := &fakeMessenger{
		attachments: []string{"/ws/log.txt"},
		history: []model.Turn{
			{Role: model.RoleUser, Text: "earlier question"},
			{Role: model.RoleAssistant, Text: "earlier answer"},
			{Role: model.RoleUser, Text: "fix the bug"},
		},
	}
	wss := &fakeWorkspaces{ws: &workspace.Workspace{Path: t.TempDir()}}
	inv := &fakeInvoker{res: claude.Result{Kind: claude.Success, Output: "done"}}
	var states []model.TaskState

	ev := testEvent()
	ev.Files = []model.FileRef{{Name: "log.txt", DownloadURL: "https://files/log"}}
	err := newPipeline(msgr, wss, inv, &states).Process(context.Background(), ev)
	require.NoError(t, err)

	assert.Contains(t, inv.prompt, "Previous conversation in this Slack thread:")
	assert.Contains(t, inv.prompt, "Assistant: earlier answer")
	assert.Contains(t, inv.prompt, "Attached files:\n- /ws/log.txt")
}

func TestProcessHistoryFailureDegrades(t *testing.T) {
	msgr := &fakeMessenger{historyErr: errors.New("slack down")}
	wss := &fakeWorkspaces{ws: &workspace.Workspace{Path: t.TempDir()}}
	inv := &fakeInvoker{res: claude.Result{Kind: claude.Success, Output: "done"}}
	var states []model.TaskState

	err := newPipeline(msgr, wss, inv, &states).Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, inv.runs)
}

func TestProcessReleasesWorkspaceWhenDeliveryFails(t *testing.T) {
	msgr := &fakeMessenger{postErr: errors.New("channel archived")}
	wss := &fakeWorkspaces{ws: &workspace.Workspace{Path: t.TempDir()}}
	inv := &fakeInvoker{res: claude.Result{Kind: claude.Success, Output: "done"}}
	var states []model.TaskState

	// Delivery failure is best effort; the task still completes and the
	// workspace is still torn down.
	err := newPipeline(msgr, wss, inv, &states).Process(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, wss.released)
}
