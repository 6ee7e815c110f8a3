package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func gitOrSkip(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{"-c", "user.email=test@example.com", "-c", "user.name=test"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return string(out)
}

func initOrigin(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-m", "initial")
	return dir
}

func localManager(t *testing.T, origin string) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), nil)
	m.cloneURL = func(string, string) string { return origin }
	return m
}

func TestAcquireClonesAndCreatesWorktree(t *testing.T) {
	gitOrSkip(t)
	origin := initOrigin(t)
	m := localManager(t, origin)

	ws, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)
	defer m.Release(context.Background(), ws)

	require.FileExists(t, filepath.Join(ws.Path, "README.md"))
	require.True(t, strings.HasPrefix(ws.Branch, "claude-request-"))
	require.Contains(t, ws.Path, "workspace-"+ws.Token)
	require.Contains(t, ws.Path, filepath.Join("repos", "acme-widget"))
	require.WithinDuration(t, time.Now(), ws.CreatedAt, time.Minute)
}

func TestAcquireUniquePathsAndBranches(t *testing.T) {
	gitOrSkip(t)
	origin := initOrigin(t)
	m := localManager(t, origin)

	a, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)
	defer m.Release(context.Background(), a)
	b, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)
	defer m.Release(context.Background(), b)

	require.NotEqual(t, a.Path, b.Path)
	require.NotEqual(t, a.Branch, b.Branch)
}

func TestAcquireResetsDivergedBase(t *testing.T) {
	gitOrSkip(t)
	origin := initOrigin(t)
	m := localManager(t, origin)

	first, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)
	m.Release(context.Background(), first)

	// Divergence written straight into the shared base must not survive the
	// next acquisition.
	base := filepath.Join(m.repoDir("acme/widget"), "main")
	require.NoError(t, os.WriteFile(filepath.Join(base, "stray.txt"), []byte("x"), 0o644))
	gitCmd(t, base, "add", ".")
	gitCmd(t, base, "commit", "-m", "local divergence")

	second, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)
	defer m.Release(context.Background(), second)

	require.NoFileExists(t, filepath.Join(base, "stray.txt"))
	require.NoFileExists(t, filepath.Join(second.Path, "stray.txt"))
}

func TestReleaseIsIdempotent(t *testing.T) {
	gitOrSkip(t)
	origin := initOrigin(t)
	m := localManager(t, origin)

	ws, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)

	m.Release(context.Background(), ws)
	require.NoDirExists(t, ws.Path)
	m.Release(context.Background(), ws)
	m.Release(context.Background(), nil)
}

func TestAcquireUnreachableRemote(t *testing.T) {
	gitOrSkip(t)
	m := localManager(t, filepath.Join(t.TempDir(), "missing-origin"))

	_, err := m.Acquire(context.Background(), "acme/widget", "")
	require.ErrorIs(t, err, ErrRepoUnavailable)
}

func TestReleaseDeletesRequestBranch(t *testing.T) {
	gitOrSkip(t)
	origin := initOrigin(t)
	m := localManager(t, origin)

	ws, err := m.Acquire(context.Background(), "acme/widget", "")
	require.NoError(t, err)
	m.Release(context.Background(), ws)

	base := filepath.Join(m.repoDir("acme/widget"), "main")
	out := gitCmd(t, base, "branch", "--list", ws.Branch)
	require.Empty(t, strings.TrimSpace(out))
}

func TestAcquireCloneFailureHidesAccessToken(t *testing.T) {
	gitOrSkip(t)
	m := NewManager(t.TempDir(), nil)
	m.cloneURL = func(repository, accessToken string) string {
		return "https://" + accessToken + "@localhost:1/" + repository + ".git"
	}

	_, err := m.Acquire(context.Background(), "acme/widget", "s3cr3t-token")
	require.ErrorIs(t, err, ErrRepoUnavailable)
	require.NotContains(t, err.Error(), "s3cr3t-token")
}

func TestGitErrorRedactsEmbeddedCredentials(t *testing.T) {
	gitErr := &GitError{
		Args:   []string{"clone", "https://s3cr3t-token@github.com/acme/widget.git", "/tmp/base"},
		Stderr: "fatal: unable to access 'https://s3cr3t-token@github.com/acme/widget.git'",
		Err:    context.DeadlineExceeded,
	}
	msg := gitErr.Error()
	require.NotContains(t, msg, "s3cr3t-token")
	require.Contains(t, msg, "https://***@github.com/acme/widget.git")
}
