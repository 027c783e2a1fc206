package textsearch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRipgrep(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("rg"); err != nil {
		t.Skip("ripgrep not installed")
	}
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestSearcher_Search_SingleKeyword(t *testing.T) {
	requireRipgrep(t)
	root := writeRepo(t, map[string]string{
		"main.go": "package main\n\nfunc beta() {\n\tprintln(\"beta here\")\n}\n",
	})

	s := New()
	results, err := s.Search(context.Background(), root, "beta")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "main.go", results[0].Filepath)
	assert.Contains(t, results[0].Text, "beta")
}

func TestSearcher_Search_NoMatches(t *testing.T) {
	requireRipgrep(t)
	root := writeRepo(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})

	s := New()
	results, err := s.Search(context.Background(), root, "nonexistenttoken")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearcher_Search_ExcludesLockFiles(t *testing.T) {
	requireRipgrep(t)
	root := writeRepo(t, map[string]string{
		"go.sum":  "beta v1.0.0 h1:abc\n",
		"main.go": "package main\n\n// beta marker\nfunc main() {}\n",
	})

	s := New()
	results, err := s.Search(context.Background(), root, "beta")
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "go.sum", r.Filepath)
	}
}

func TestMergeHits(t *testing.T) {
	hits := []Hit{
		{Filepath: "a.go", Line: 10},
		{Filepath: "a.go", Line: 12},
		{Filepath: "a.go", Line: 40},
		{Filepath: "b.go", Line: 5},
	}
	ranges := mergeHits(hits)

	var aRanges, bRanges []hitRange
	for _, r := range ranges {
		if r.Filepath == "a.go" {
			aRanges = append(aRanges, r)
		} else {
			bRanges = append(bRanges, r)
		}
	}
	require.Len(t, aRanges, 2)
	require.Len(t, bRanges, 1)
	assert.Equal(t, 1, bRanges[0].HitCount)
}

func TestBuildWindow_ClampsToMaxLines(t *testing.T) {
	root := t.TempDir()
	var content string
	for i := 1; i <= 200; i++ {
		content += "line\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte(content), 0o644))

	res, err := buildWindow(root, hitRange{Filepath: "f.txt", LineStart: 100, LineEnd: 100, HitCount: 1}, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.LineEnd-res.LineStart+1, maxWindowLines)
}
