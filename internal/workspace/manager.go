package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	cloneTimeout = 5 * time.Minute
	gitTimeout   = 30 * time.Second
)

// ErrRepoUnavailable marks clone/fetch failures where the remote could not
// be reached or synchronized.
var ErrRepoUnavailable = errors.New("repository unavailable")

// GitError is returned when a git command exits non-zero. Stderr is kept so
// the orchestrator can surface it to the user. Credentials embedded in remote
// URLs are scrubbed from every rendered field.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	return redactCredentials(fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr))
}

var urlCredential = regexp.MustCompile(`://[^@/\s]+@`)

func redactCredentials(s string) string {
	return urlCredential.ReplaceAllString(s, "://***@")
}

func (e *GitError) Unwrap() error { return e.Err }

// Workspace is an isolated worktree owned by exactly one task.
type Workspace struct {
	Path      string
	Branch    string
	Token     string
	CreatedAt time.Time

	repository string
	baseRepo   string
}

// Manager owns the shared base clone per repository and issues disposable
// worktrees from it. All base mutations for one repository are serialized
// behind a per-repository lock.
type Manager struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	cloneURL func(repository, accessToken string) string
}

func NewManager(root string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		root:     root,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		cloneURL: githubCloneURL,
	}
}

func githubCloneURL(repository, accessToken string) string {
	if accessToken != "" {
		return fmt.Sprintf("https://%s@github.com/%s.git", accessToken, repository)
	}
	return fmt.Sprintf("https://github.com/%s.git", repository)
}

func (m *Manager) lockFor(repository string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[repository]
	if !ok {
		l = &sync.Mutex{}
		m.locks[repository] = l
	}
	return l
}

func (m *Manager) repoDir(repository string) string {
	return filepath.Join(m.root, "repos", strings.ReplaceAll(repository, "/", "-"))
}

// Acquire synchronizes the base clone to the remote tip and materializes a
// fresh worktree on a uniquely named branch. The caller owns the returned
// workspace until it is released.
func (m *Manager) Acquire(ctx context.Context, repository, accessToken string) (*Workspace, error) {
	lock := m.lockFor(repository)
	lock.Lock()
	defer lock.Unlock()

	dir := m.repoDir(repository)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	base := filepath.Join(dir, "main")

	if _, err := os.Stat(filepath.Join(base, ".git")); err != nil {
		if _, err := runGit(ctx, dir, cloneTimeout, "clone", m.cloneURL(repository, accessToken), base); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRepoUnavailable, err)
		}
	} else {
		if _, err := runGit(ctx, base, gitTimeout, "fetch", "--all"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRepoUnavailable, err)
		}
		// The base is forced to mirror the remote; local divergence is
		// discarded, never preserved.
		if _, err := runGit(ctx, base, gitTimeout, "reset", "--hard", m.remoteHead(ctx, base)); err != nil {
			return nil, err
		}
	}

	token := uuid.NewString()[:8]
	branch := "claude-request-" + token
	path := filepath.Join(dir, "workspace-"+token)
	if _, err := runGit(ctx, base, gitTimeout, "worktree", "add", "-b", branch, path, "HEAD"); err != nil {
		return nil, err
	}

	return &Workspace{
		Path:       path,
		Branch:     branch,
		Token:      token,
		CreatedAt:  time.Now(),
		repository: repository,
		baseRepo:   base,
	}, nil
}

// remoteHead resolves the remote default branch ref, falling back to
// origin/main when the symbolic ref is missing.
func (m *Manager) remoteHead(ctx context.Context, base string) string {
	out, err := runGit(ctx, base, gitTimeout, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "origin/main"
	}
	ref := strings.TrimSpace(out)
	return strings.TrimPrefix(ref, "refs/remotes/")
}

// Release removes the worktree registration, deletes the request branch and
// the workspace tree.
// Cleanup is best effort: errors are logged, never returned, and releasing
// an already-removed workspace is a no-op.
func (m *Manager) Release(ctx context.Context, ws *Workspace) {
	if ws == nil {
		return
	}
	lock := m.lockFor(ws.repository)
	lock.Lock()
	if _, err := runGit(ctx, ws.baseRepo, gitTimeout, "worktree", "remove", ws.Path, "--force"); err != nil {
		m.log.Debug("worktree remove failed", "path", ws.Path, "error", err)
	}
	if _, err := runGit(ctx, ws.baseRepo, gitTimeout, "branch", "-D", ws.Branch); err != nil {
		m.log.Debug("branch delete failed", "branch", ws.Branch, "error", err)
	}
	lock.Unlock()

	if err := os.RemoveAll(ws.Path); err != nil {
		m.log.Warn("failed to cleanup workspace", "path", ws.Path, "error", err)
	}
}

func runGit(ctx context.Context, workdir string, timeout time.Duration, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), &GitError{Args: args, Stderr: redactCredentials(strings.TrimSpace(stderr.String())), Err: err}
	}
	return stdout.String(), nil
}
