package rebase_test

import (
	"context"
	"strings"
	"testing"

	"github.com/gitbutlerapp/but/internal/conflict"
	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/gittest"
	"github.com/gitbutlerapp/but/internal/rebase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitOnTop(t *testing.T, repo *git.Repository, parent git.Hash, files map[string]string, message string) git.Hash {
	t.Helper()
	ctx := context.Background()
	tree := mustTree(t, repo, parent)
	var writes []git.BlobInfo
	for path, content := range files {
		hash, err := repo.WriteObject(ctx, git.BlobType, strings.NewReader(content))
		require.NoError(t, err)
		writes = append(writes, git.BlobInfo{Mode: git.RegularMode, Hash: hash, Path: path})
	}
	newTree, err := repo.UpdateTree(ctx, git.UpdateTreeRequest{Tree: tree, Writes: seq(writes)})
	require.NoError(t, err)
	hash, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree: newTree, Message: message, Parents: []git.Hash{parent},
		Author: &gittest.Signature, Committer: &gittest.Signature,
	})
	require.NoError(t, err)
	return hash
}

func mustTree(t *testing.T, repo *git.Repository, commit git.Hash) git.Hash {
	t.Helper()
	tree, err := repo.PeelToTree(context.Background(), commit.String())
	require.NoError(t, err)
	return tree
}

func seq(s []git.BlobInfo) func(yield func(git.BlobInfo) bool) {
	return func(yield func(git.BlobInfo) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}

// Invariant: replaying a commit onto its own original parent is the
// identity on its tree.
func TestCherryRebaseGroup_OntoOwnParentIsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	base := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"a.txt": "1"}})
	c1 := commitOnTop(t, repo, base, map[string]string{"b.txt": "1"}, "add b")

	newHead, results, err := rebase.CherryRebaseGroup(ctx, repo, base, []git.Hash{c1}, gittest.Signature)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Conflicted)
	assert.Equal(t, c1, results[0].OldHash)
	assert.Equal(t, mustTree(t, repo, c1), mustTree(t, repo, newHead))
}

// A destination that diverged on the same lines as the replayed commit
// produces a conflicted commit whose auto-resolution is a valid tree.
func TestCherryRebaseGroup_ConflictingDestination(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	base := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"foo.txt": "a"}})
	theirs := commitOnTop(t, repo, base, map[string]string{"foo.txt": "c"}, "theirs changes foo")
	ours := commitOnTop(t, repo, base, map[string]string{"foo.txt": "b"}, "ours changes foo")

	_, results, err := rebase.CherryRebaseGroup(ctx, repo, ours, []git.Hash{theirs}, gittest.Signature)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Conflicted)

	decoded, err := conflict.Decode(ctx, repo, mustTree(t, repo, results[0].NewHash))
	require.NoError(t, err)
	require.NotNil(t, decoded.AutoResolution)
	assert.Equal(t, "b", readBlob(t, repo, decoded.AutoResolution["foo.txt"]))
}

func readBlob(t *testing.T, repo *git.Repository, hash git.Hash) string {
	t.Helper()
	var buf strings.Builder
	require.NoError(t, repo.ReadObject(context.Background(), git.BlobType, hash, &buf))
	return buf.String()
}

func TestPlan_Linearize(t *testing.T) {
	var p rebase.Plan
	c1 := p.AddCommit("c1")
	c2 := p.AddCommit("c2")
	seg := p.AddSegment("main")
	p.AppendCommit(seg, c1)
	p.AppendCommit(seg, c2)

	order := p.Linearize(seg)
	require.Equal(t, []git.Hash{"c1", "c2"}, order)
}
