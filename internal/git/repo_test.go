package git_test

import (
	"context"
	"strings"
	"testing"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/gittest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOpen(t *testing.T) {
	repo := gittest.NewRepository(t)
	assert.NotEmpty(t, repo.RootDir())
	assert.NotEmpty(t, repo.GitDir())
}

func TestObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	hash, err := repo.WriteObject(ctx, git.BlobType, strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.False(t, hash.IsZero())

	var buf strings.Builder
	require.NoError(t, repo.ReadObject(ctx, git.BlobType, hash, &buf))
	assert.Equal(t, "hello world", buf.String())
}

func TestMakeTreeListTree(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	blobHash, err := repo.WriteObject(ctx, git.BlobType, strings.NewReader("content"))
	require.NoError(t, err)

	entries := []git.TreeEntry{
		{Mode: git.RegularMode, Type: git.BlobType, Hash: blobHash, Name: "file.txt"},
	}
	treeHash, err := repo.MakeTree(ctx, func(yield func(git.TreeEntry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	})
	require.NoError(t, err)
	assert.False(t, treeHash.IsZero())

	seq, err := repo.ListTree(ctx, treeHash, git.ListTreeOptions{})
	require.NoError(t, err)

	var got []git.TreeEntry
	for ent, err := range seq {
		require.NoError(t, err)
		got = append(got, ent)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "file.txt", got[0].Name)
	assert.Equal(t, blobHash, got[0].Hash)
}

func TestCommitTreeAndReadCommit(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	head := gittest.Seed(t, repo, gittest.Commit{
		Message: "initial commit\n\nchange-id: abc123",
		Files:   map[string]string{"README.md": "hello"},
	})

	commit, err := repo.ReadCommit(ctx, head.String())
	require.NoError(t, err)
	assert.Equal(t, "initial commit", commit.Message.Subject)
	assert.Empty(t, commit.Parents)
	assert.Equal(t, []string{"abc123"}, commit.Headers["change-id"])
}

func TestSetRefCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	head := gittest.Seed(t, repo, gittest.Commit{
		Message: "first",
		Files:   map[string]string{"a.txt": "a"},
	})

	require.NoError(t, repo.SetRef(ctx, git.SetRefRequest{
		Ref:     "refs/heads/feature",
		Hash:    head,
		OldHash: git.ZeroHash,
	}))

	// Creating it again with OldHash=ZeroHash must fail: the ref exists.
	err := repo.SetRef(ctx, git.SetRefRequest{
		Ref:     "refs/heads/feature",
		Hash:    head,
		OldHash: git.ZeroHash,
	})
	assert.Error(t, err)
}

func TestMergeTreeConflict(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	base := gittest.Seed(t, repo, gittest.Commit{
		Message: "base",
		Files:   map[string]string{"f.txt": "base\n"},
	})

	ours := gittest.Seed(t, repo, gittest.Commit{
		Message: "ours",
		Files:   map[string]string{"f.txt": "ours\n"},
	})

	// theirs builds off base independently of ours, so UpdateTree must
	// start from base's tree, not the shared linear history Seed
	// assumes; build it directly.
	baseCommit, err := repo.ReadCommit(ctx, base.String())
	require.NoError(t, err)

	blobHash, err := repo.WriteObject(ctx, git.BlobType, strings.NewReader("theirs\n"))
	require.NoError(t, err)
	theirsTree, err := repo.UpdateTree(ctx, git.UpdateTreeRequest{
		Tree: baseCommit.Tree,
		Writes: func(yield func(git.BlobInfo) bool) {
			yield(git.BlobInfo{Mode: git.RegularMode, Hash: blobHash, Path: "f.txt"})
		},
	})
	require.NoError(t, err)

	theirs, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      theirsTree,
		Message:   "theirs",
		Parents:   []git.Hash{base},
		Author:    &gittest.Signature,
		Committer: &gittest.Signature,
	})
	require.NoError(t, err)

	result, err := repo.ThreeWayMergeTrees(ctx, base, ours, theirs)
	require.NoError(t, err)
	assert.True(t, result.Conflicted)
	assert.Contains(t, result.ConflictPaths, "f.txt")
}

func TestMergeBase(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	base := gittest.Seed(t, repo, gittest.Commit{
		Message: "base",
		Files:   map[string]string{"f.txt": "base\n"},
	})

	ahead := gittest.Seed(t, repo, gittest.Commit{
		Message: "ahead",
		Files:   map[string]string{"g.txt": "g\n"},
	})

	mb, err := repo.MergeBase(ctx, base.String(), ahead.String())
	require.NoError(t, err)
	assert.Equal(t, base, mb)
}
