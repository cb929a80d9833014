// Package gittest provides helpers for building scratch Git repositories
// in tests.
package gittest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/stretchr/testify/require"
	"go.abhg.dev/log/silog"
)

// Signature is the deterministic author/committer used by fixture
// repositories, so that tests never depend on wall-clock time.
var Signature = git.Signature{
	Name:  "Test",
	Email: "test@example.com",
	Time:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
}

// NewRepository initializes a new, empty Git repository in a temporary
// directory that is removed when the test completes.
func NewRepository(t testing.TB) *git.Repository {
	t.Helper()

	ctx := context.Background()
	dir := t.TempDir()

	repo, err := git.Init(ctx, dir, git.InitOptions{Log: silog.Nop(), Branch: "main"})
	require.NoError(t, err)
	return repo
}

// Commit describes one commit for Seed: its message, the files to write
// (path relative to the repository root -> content), and the paths to
// delete.
type Commit struct {
	Message string
	Files   map[string]string // path -> content
	Deletes []string
}

// Seed creates a new linear history of commits, returning the hash of
// the final commit. The first commit is a root commit built from the
// empty tree; HEAD is neither read nor moved.
//
// Each commit's tree is built from the prior commit's tree, modified by
// Files (written or overwritten) and Deletes, using UpdateTree -- so this
// never touches the working copy or index, matching how the rest of the
// engine manipulates trees.
func Seed(t testing.TB, repo *git.Repository, commits ...Commit) git.Hash {
	t.Helper()
	ctx := context.Background()

	var (
		parent git.Hash
		tree   = git.EmptyTreeHash
	)
	for _, c := range commits {
		var writes []git.BlobInfo
		for path, content := range c.Files {
			hash, err := repo.WriteObject(ctx, git.BlobType, strings.NewReader(content))
			require.NoError(t, err)
			writes = append(writes, git.BlobInfo{Mode: git.RegularMode, Hash: hash, Path: path})
		}

		newTree, err := repo.UpdateTree(ctx, git.UpdateTreeRequest{
			Tree:    tree,
			Writes:  sliceSeq(writes),
			Deletes: sliceSeq(c.Deletes),
		})
		require.NoError(t, err)
		tree = newTree

		var parents []git.Hash
		if !parent.IsZero() {
			parents = []git.Hash{parent}
		}

		hash, err := repo.CommitTree(ctx, git.CommitTreeRequest{
			Tree:      tree,
			Message:   c.Message,
			Parents:   parents,
			Author:    &Signature,
			Committer: &Signature,
		})
		require.NoError(t, err)
		parent = hash
	}

	return parent
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

// WriteFile writes content to a path in the repository's working tree,
// creating parent directories as needed. Useful for tests that exercise
// the workspace composer's checkout behavior.
func WriteFile(t testing.TB, repo *git.Repository, path, content string) {
	t.Helper()
	full := filepath.Join(repo.RootDir(), path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}
