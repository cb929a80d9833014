package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/hunk"
)

// DiffSelection is the set of additive hunks (see hunk.ToAdditiveHunks) a
// caller wants applied to a tree, plus any whole-file deletions, keyed by
// repository-relative path.
type DiffSelection struct {
	Files   map[string][]hunk.Hunk
	Deletes []string
}

// Empty reports whether the selection has nothing to apply, the signal
// for create_commit/amend to return a NoChange outcome rather than
// writing a commit.
func (s DiffSelection) Empty() bool {
	return len(s.Files) == 0 && len(s.Deletes) == 0
}

// applyToTree builds a new tree by applying sel to parent, reading each
// touched file's current content from parent to compute its patched
// content.
func applyToTree(ctx context.Context, repo *git.Repository, parent git.Hash, sel DiffSelection) (git.Hash, error) {
	writes := make([]git.BlobInfo, 0, len(sel.Files))
	for path, hunks := range sel.Files {
		content, err := readFileAt(ctx, repo, parent, path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}

		patched, err := ApplyHunks(content, hunks)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}

		hash, err := repo.WriteObject(ctx, git.BlobType, strings.NewReader(patched))
		if err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		writes = append(writes, git.BlobInfo{Mode: git.RegularMode, Hash: hash, Path: path})
	}

	return repo.UpdateTree(ctx, git.UpdateTreeRequest{
		Tree:    parent,
		Writes:  sliceSeq(writes),
		Deletes: sliceSeq(sel.Deletes),
	})
}

// readFileAt returns the blob content of path in tree, or "" if the path
// does not yet exist (a new file).
func readFileAt(ctx context.Context, repo *git.Repository, tree git.Hash, path string) (string, error) {
	hash, err := repo.HashAt(ctx, tree.String(), path)
	if errors.Is(err, git.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	if err := repo.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sliceSeq[T any](s []T) func(yield func(T) bool) {
	return func(yield func(T) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}
