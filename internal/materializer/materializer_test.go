package materializer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo creates a local git repository with one commit and returns
// its directory, usable as a "remote" via a file:// style local path.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")

	return dir
}

func TestMaterializerPrepareAndListTracked(t *testing.T) {
	remote := initTestRepo(t)

	m := New(Config{ReposRoot: t.TempDir(), CloneTimeout: 30 * time.Second, DefaultBranch: "main"})
	ctx := context.Background()

	dir, err := m.Prepare(ctx, GitResource{ID: "res-1", URL: remote, Branch: "main"})
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, "a.txt"))

	tracked, err := m.ListTracked(ctx, dir)
	require.NoError(t, err)
	assert.Contains(t, tracked, "a.txt")

	head := m.HeadCommit(ctx, dir)
	require.NotNil(t, head)
	assert.Len(t, *head, 40)

	remoteHead := m.RemoteHead(ctx, remote, "main")
	require.NotNil(t, remoteHead)
	assert.Equal(t, *head, *remoteHead)
}

func TestMaterializerPrepareIsIdempotent(t *testing.T) {
	remote := initTestRepo(t)
	m := New(Config{ReposRoot: t.TempDir(), DefaultBranch: "main"})
	ctx := context.Background()

	dir1, err := m.Prepare(ctx, GitResource{ID: "res-1", URL: remote, Branch: "main"})
	require.NoError(t, err)
	dir2, err := m.Prepare(ctx, GitResource{ID: "res-1", URL: remote, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, dir1, dir2)
}

func TestMaterializerPrepareRequiresURL(t *testing.T) {
	m := New(Config{ReposRoot: t.TempDir()})
	_, err := m.Prepare(context.Background(), GitResource{ID: "res-1"})
	assert.Error(t, err)
}
