// Package materializer brings resource content onto the filesystem: it
// shallow-clones/fetches git repositories and validates local directories
// under a managed root keyed by resource id.
package materializer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/observability"
)

var tracer = otel.Tracer("ctxpack/materializer")

// SkipDirs are excluded at any depth when walking a local resource. Listing
// a git resource's tracked files (ListTracked) does not consult them.
var SkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"coverage":     true,
}

// Materializer maps git and local resources onto a managed directory tree.
type Materializer struct {
	reposRoot     string
	cloneTimeout  time.Duration
	defaultBranch string
}

// Config configures a Materializer.
type Config struct {
	ReposRoot     string
	CloneTimeout  time.Duration
	DefaultBranch string
}

// New creates a Materializer rooted at cfg.ReposRoot.
func New(cfg Config) *Materializer {
	if cfg.CloneTimeout == 0 {
		cfg.CloneTimeout = 120 * time.Second
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	return &Materializer{
		reposRoot:     cfg.ReposRoot,
		cloneTimeout:  cfg.CloneTimeout,
		defaultBranch: cfg.DefaultBranch,
	}
}

// Dir returns the absolute managed directory for a git resource id.
func (m *Materializer) Dir(resourceID string) string {
	return filepath.Join(m.reposRoot, resourceID)
}

// GitResource describes the subset of Resource fields the Materializer needs.
type GitResource struct {
	ID     string
	URL    string
	Branch string
	Commit string
}

// Prepare idempotently materializes a git resource: clones if the directory
// is missing or lacks a .git metadata folder, otherwise updates the origin
// URL, fetches depth-1, and force-checks-out the target branch or commit.
// Returns the absolute directory. Fails when the URL is absent or
// clone/fetch fails.
func (m *Materializer) Prepare(ctx context.Context, r GitResource) (dir string, err error) {
	ctx, span := observability.InstrumentMaterialize(ctx, tracer, "prepare", r.ID)
	defer func() {
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		span.End()
	}()

	if r.URL == "" {
		return "", ctxerrors.Validationf("remote URL is required to materialize resource %s", r.ID)
	}

	branch := r.Branch
	if branch == "" {
		branch = m.defaultBranch
	}
	dir = m.Dir(r.ID)

	hasGitDir := false
	if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
		hasGitDir = true
	}

	if !hasGitDir {
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("clean materialize dir: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", fmt.Errorf("create repos root: %w", err)
		}

		if _, err := m.run(ctx, "", "clone", "--depth", "1", "--branch", branch, "--single-branch", r.URL, dir); err != nil {
			// Fall back to a depth-1 clone without pinning a branch.
			if _, fallbackErr := m.run(ctx, "", "clone", "--depth", "1", r.URL, dir); fallbackErr != nil {
				return "", fallbackErr
			}
		}
		if r.Commit != "" {
			if _, err := m.run(ctx, dir, "fetch", "--depth", "1", "origin", r.Commit); err == nil {
				_, _ = m.run(ctx, dir, "checkout", "--force", r.Commit)
			}
		}
		return dir, nil
	}

	if _, err := m.run(ctx, dir, "remote", "set-url", "origin", r.URL); err != nil {
		return "", err
	}

	target := r.Commit
	if target == "" {
		target = branch
	}
	if _, err := m.run(ctx, dir, "fetch", "--depth", "1", "origin", target); err != nil {
		return "", err
	}
	checkoutRef := target
	if r.Commit == "" {
		checkoutRef = "FETCH_HEAD"
	}
	if _, err := m.run(ctx, dir, "checkout", "--force", checkoutRef); err != nil {
		return "", err
	}

	return dir, nil
}

// HeadCommit returns the HEAD SHA of dir, or nil if it cannot be determined.
// Non-fatal: callers treat a nil result as "unknown", not an error.
func (m *Materializer) HeadCommit(ctx context.Context, dir string) *string {
	out, err := m.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return nil
	}
	sha := strings.TrimSpace(out)
	if sha == "" {
		return nil
	}
	return &sha
}

// RemoteHead returns the SHA of branch on the given remote URL, or nil if it
// cannot be determined.
func (m *Materializer) RemoteHead(ctx context.Context, url, branch string) *string {
	if branch == "" {
		branch = m.defaultBranch
	}
	out, err := m.run(ctx, "", "ls-remote", "--heads", url, branch)
	if err != nil {
		return nil
	}
	line := strings.TrimSpace(out)
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return &fields[0]
}

// ListTracked enumerates git-tracked files under dir as POSIX-relative paths.
func (m *Materializer) ListTracked(ctx context.Context, dir string) ([]string, error) {
	out, err := m.runRaw(ctx, dir, "ls-files", "-z")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p == "" {
			continue
		}
		paths = append(paths, filepath.ToSlash(p))
	}
	return paths, nil
}

// run executes git and returns its stdout, wrapping non-zero exits as a
// ctxerrors.KindTool error carrying the command line.
func (m *Materializer) run(ctx context.Context, dir string, args ...string) (string, error) {
	return m.runRaw(ctx, dir, args...)
}

func (m *Materializer) runRaw(ctx context.Context, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, m.cloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", ctxerrors.Wrap(ctxerrors.KindTool,
			fmt.Sprintf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())),
			err,
		)
	}
	return stdout.String(), nil
}
