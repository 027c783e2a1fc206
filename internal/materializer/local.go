package materializer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

// ValidateLocalPath confirms a local resource's configured path exists.
func ValidateLocalPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return ctxerrors.Wrap(ctxerrors.KindNotFound, fmt.Sprintf("local path %s does not exist", path), err)
	}
	if !info.IsDir() {
		return ctxerrors.Validationf("local path %s is not a directory", path)
	}
	return nil
}

// WalkLocal enumerates regular files under root, skipping SkipDirs at any
// depth, returning POSIX-relative paths.
func WalkLocal(ctx context.Context, root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local root: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && SkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk local root: %w", err)
	}
	return paths, nil
}

// LocalHeadCommit runs `git rev-parse HEAD` against path, returning nil when
// the directory is not a git working tree or the command fails. Nullable by
// design: local resources need not be git repositories.
func LocalHeadCommit(ctx context.Context, path string) *string {
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", "-C", path, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	sha := strings.TrimSpace(string(out))
	if sha == "" {
		return nil
	}
	return &sha
}
