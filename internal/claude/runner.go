package claude

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultTimeout is the hard ceiling on one analysis run.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxOutput keeps responses under Slack's message-size limits.
	DefaultMaxOutput = 4000

	noOutputSentinel = "Claude Code completed but returned no output."
	timeoutText      = "⏰ Claude Code execution timed out after 5 minutes. Your request may be too complex or the repository too large."
	notFoundText     = "❌ Claude Code CLI not found. Please ensure it's installed and in your PATH."
	truncationMark   = "\n\n... (response truncated for Slack)"
)

// Kind classifies the outcome of one CLI invocation.
type Kind int

const (
	Success Kind = iota
	Timeout
	NotFound
	Failed
)

// Result is the normalized outcome of a run. All kinds render to a
// user-facing body via Text; none of them is a pipeline error.
type Result struct {
	Kind     Kind
	Output   string
	Stderr   string
	Duration time.Duration
}

// Runner invokes the claude CLI as a child process inside a workspace.
type Runner struct {
	Bin       string
	APIKey    string
	Timeout   time.Duration
	MaxOutput int
}

// Run executes the CLI with the working directory set to dir. The context
// deadline is local: expiry terminates the process and yields a Timeout
// result rather than an error.
func (r Runner) Run(ctx context.Context, dir, prompt, systemPrompt string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, r.Bin, "-p", prompt, "--append-system-prompt", systemPrompt)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "ANTHROPIC_API_KEY="+r.APIKey)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return Result{
		Kind:     classify(cctx.Err(), err),
		Output:   stdout.String(),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
}

// classify maps the run errors to an outcome kind. A process that exited
// cleanly before the deadline fired is a Success even when the context has
// since expired.
func classify(ctxErr, runErr error) Kind {
	switch {
	case ctxErr == context.DeadlineExceeded && runErr != nil:
		return Timeout
	case errors.Is(runErr, exec.ErrNotFound):
		return NotFound
	case runErr != nil:
		return Failed
	default:
		return Success
	}
}

// Text renders the outcome as the response body delivered to the user.
func (r Runner) Text(res Result) string {
	max := r.MaxOutput
	if max <= 0 {
		max = DefaultMaxOutput
	}
	switch res.Kind {
	case Timeout:
		return timeoutText
	case NotFound:
		return notFoundText
	case Failed:
		detail := res.Stderr
		if detail == "" {
			detail = "Unknown error"
		}
		return "Claude Code execution failed: " + detail
	}
	out := strings.TrimSpace(res.Output)
	if out == "" {
		return noOutputSentinel
	}
	if len(out) > max {
		cut := max - 100
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + truncationMark
	}
	return out
}
