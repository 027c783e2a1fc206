package materializer

import (
	"github.com/go-git/go-git/v5"
)

// ResolveRepoRoot reports whether path sits inside a git working tree and,
// if so, returns the tree's root directory. It is a read-only probe that
// never mutates the repository, unlike Materializer.Prepare's
// subprocess-driven clone/fetch. Nothing in this module calls it: a local
// resource's commit is read by LocalHeadCommit through the git subprocess.
func ResolveRepoRoot(path string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", false
	}
	return wt.Filesystem.Root(), true
}
