package materializer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

func TestValidateLocalPath(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, ValidateLocalPath(tmp))

	err := ValidateLocalPath(filepath.Join(tmp, "missing"))
	assert.True(t, ctxerrors.Is(err, ctxerrors.KindNotFound))

	file := filepath.Join(tmp, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = ValidateLocalPath(file)
	assert.True(t, ctxerrors.Is(err, ctxerrors.KindValidation))
}

func TestWalkLocalSkipsExcludedDirs(t *testing.T) {
	tmp := t.TempDir()
	files := map[string]string{
		"main.go":                 "package main",
		"README.md":               "# Project",
		"internal/app/app.go":     "package app",
		"node_modules/pkg/pkg.js": "module.exports = {}",
		".git/config":             "[core]",
		"dist/output.js":          "var x",
		"build/output.bin":        "binary",
		".next/cache.json":        "{}",
		"coverage/lcov.info":      "",
	}
	for path, content := range files {
		full := filepath.Join(tmp, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	paths, err := WalkLocal(context.Background(), tmp)
	require.NoError(t, err)
	sort.Strings(paths)

	assert.Contains(t, paths, "main.go")
	assert.Contains(t, paths, "README.md")
	assert.Contains(t, paths, "internal/app/app.go")
	for _, skipped := range []string{
		"node_modules/pkg/pkg.js", ".git/config", "dist/output.js",
		"build/output.bin", ".next/cache.json", "coverage/lcov.info",
	} {
		assert.NotContains(t, paths, skipped)
	}
}

func TestLocalHeadCommitNonGitDirReturnsNil(t *testing.T) {
	tmp := t.TempDir()
	assert.Nil(t, LocalHeadCommit(context.Background(), tmp))
}
