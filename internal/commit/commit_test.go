package commit_test

import (
	"context"
	"strings"
	"testing"

	"github.com/gitbutlerapp/but/internal/commit"
	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/gittest"
	"github.com/gitbutlerapp/but/internal/hunk"
	"github.com/gitbutlerapp/but/internal/ownership"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedChain builds a linear history the same way gittest.Seed does, but
// returns every commit's hash (oldest first) instead of just the last
// one, so tests can reference an intermediate commit as a parent, a
// rebase target, or a move_commit_file endpoint.
func seedChain(t *testing.T, repo *git.Repository, commits ...gittest.Commit) []git.Hash {
	t.Helper()
	ctx := context.Background()

	var (
		parent git.Hash
		tree   = git.EmptyTreeHash
		hashes []git.Hash
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
			Writes:  seq(writes),
			Deletes: seq(c.Deletes),
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
			Author:    &gittest.Signature,
			Committer: &gittest.Signature,
		})
		require.NoError(t, err)
		parent = hash
		hashes = append(hashes, hash)
	}
	return hashes
}

func seq[T any](s []T) func(yield func(T) bool) {
	return func(yield func(T) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}

func TestCreateCommit_EmptySelectionIsNoChange(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"a.txt": "1\n"}})

	outcome, err := commit.CreateCommit(ctx, repo, commit.CreateCommitRequest{
		Parent:    chain[0],
		Message:   git.CommitMessage{Subject: "empty"},
		Selection: commit.DiffSelection{},
		Author:    gittest.Signature,
		Committer: gittest.Signature,
	})
	require.NoError(t, err)
	assert.True(t, outcome.NoChange)
	assert.Empty(t, outcome.Commit)
}

func TestCreateCommit_WritesTreeAndChangeID(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"a.txt": "1\n"}})

	outcome, err := commit.CreateCommit(ctx, repo, commit.CreateCommitRequest{
		Parent:  chain[0],
		Message: git.CommitMessage{Subject: "add b"},
		Selection: commit.DiffSelection{Files: map[string][]hunk.Hunk{
			"b.txt": {{OldStart: 0, OldLines: 0, NewStart: 1, NewLines: 1, Lines: []string{"+bar"}}},
		}},
		Author:    gittest.Signature,
		Committer: gittest.Signature,
	})
	require.NoError(t, err)
	require.False(t, outcome.NoChange)
	assert.Equal(t, outcome.Commit, outcome.NewHead)

	c, err := repo.ReadCommit(ctx, outcome.Commit.String())
	require.NoError(t, err)
	require.Len(t, c.Headers[commit.ChangeIDHeader], 1)

	content := readBlobAt(t, repo, c.Tree, "b.txt")
	assert.Equal(t, "bar\n", content)
}

func TestAmend_FoldsChangeAndRebasesDescendants(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo,
		gittest.Commit{Message: "base", Files: map[string]string{"a.txt": "1\n"}},
		gittest.Commit{Message: "add b", Files: map[string]string{"b.txt": "bar\n"}},
		gittest.Commit{Message: "add c", Files: map[string]string{"c.txt": "baz\n"}},
	)
	target, child := chain[1], chain[2]

	outcome, err := commit.Amend(ctx, repo, commit.AmendRequest{
		Target: target,
		Selection: commit.DiffSelection{Files: map[string][]hunk.Hunk{
			"b.txt": {{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1, Lines: []string{"-bar", "+bar2"}}},
		}},
		Descendants: []git.Hash{child},
		Committer:   gittest.Signature,
	})
	require.NoError(t, err)
	require.Len(t, outcome.Rewrites, 1)
	assert.False(t, outcome.Rewrites[0].Conflicted)

	amendedContent := readBlobAt(t, repo, mustTreeOf(t, repo, outcome.Commit), "b.txt")
	assert.Equal(t, "bar2\n", amendedContent)

	newHeadTree := mustTreeOf(t, repo, outcome.NewHead)
	assert.Equal(t, "bar2\n", readBlobAt(t, repo, newHeadTree, "b.txt"))
	assert.Equal(t, "baz\n", readBlobAt(t, repo, newHeadTree, "c.txt"))
}

// Scenario 4 from spec.md §8: move_commit_file downward.
func TestMoveCommitFile_Scenario4(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo,
		gittest.Commit{Message: "add file.txt", Files: map[string]string{"file.txt": "1\n"}},
		gittest.Commit{Message: "add file2, file3", Files: map[string]string{
			"file2.txt": "2\n", "file3.txt": "3\n",
		}},
	)
	commit1, commit2 := chain[0], chain[1]

	ranges := ownership.NewWorkspaceRanges()

	outcome, err := commit.MoveCommitFile(ctx, repo, commit.MoveCommitFileRequest{
		Source:    commit2,
		Dest:      commit1,
		Paths:     []string{"file2.txt"},
		Ranges:    ranges,
		Committer: gittest.Signature,
	})
	require.NoError(t, err)

	destTree := mustTreeOf(t, repo, outcome.NewDest)
	assert.Equal(t, "1\n", readBlobAt(t, repo, destTree, "file.txt"))
	assert.Equal(t, "2\n", readBlobAt(t, repo, destTree, "file2.txt"))

	sourceTree := mustTreeOf(t, repo, outcome.NewHead)
	assert.Equal(t, "3\n", readBlobAt(t, repo, sourceTree, "file3.txt"))
	assertPathAbsent(t, repo, sourceTree, "file2.txt")

	destCommit, err := repo.ReadCommit(ctx, outcome.NewDest.String())
	require.NoError(t, err)
	origDestCommit, err := repo.ReadCommit(ctx, commit1.String())
	require.NoError(t, err)
	assert.Equal(t, origDestCommit.Message.Subject, destCommit.Message.Subject)
}

func TestMoveCommitFile_RejectsDependentChange(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo,
		gittest.Commit{Message: "add file.txt", Files: map[string]string{"file.txt": "1\n"}},
		gittest.Commit{Message: "add file2", Files: map[string]string{"file2.txt": "2\n"}},
	)
	commit1, commit2 := chain[0], chain[1]

	ranges := ownership.NewWorkspaceRanges()
	ranges.Apply(ownership.CommitChange{
		StackID: "S", CommitID: commit2.String(), Path: "file2.txt",
		Hunks: []hunk.Hunk{{NewStart: 1, NewLines: 1}},
	})
	// A later commit edits the same lines, creating a dependency on commit2.
	ranges.Apply(ownership.CommitChange{
		StackID: "S", CommitID: "laterCommit", Path: "file2.txt",
		Hunks: []hunk.Hunk{{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1}},
	})

	_, err := commit.MoveCommitFile(ctx, repo, commit.MoveCommitFileRequest{
		Source:    commit2,
		Dest:      commit1,
		Paths:     []string{"file2.txt"},
		Ranges:    ranges,
		Committer: gittest.Signature,
	})
	require.Error(t, err)
	var depErr *commit.DependentChangeError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "file2.txt", depErr.Path)
}

func TestSquash_CombinesAdjacentCommits(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo,
		gittest.Commit{Message: "base", Files: map[string]string{"a.txt": "1\n"}},
		gittest.Commit{Message: "add b", Files: map[string]string{"b.txt": "bar\n"}},
		gittest.Commit{Message: "add c", Files: map[string]string{"c.txt": "baz\n"}},
	)
	base, c1, c2 := chain[0], chain[1], chain[2]

	newHead, results, err := commit.Squash(ctx, repo, base, []git.Hash{c1, c2}, c1, c2, gittest.Signature)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Conflicted)

	tree := mustTreeOf(t, repo, newHead)
	assert.Equal(t, "bar\n", readBlobAt(t, repo, tree, "b.txt"))
	assert.Equal(t, "baz\n", readBlobAt(t, repo, tree, "c.txt"))

	combined, err := repo.ReadCommit(ctx, newHead.String())
	require.NoError(t, err)
	assert.Equal(t, "add b", combined.Message.Subject)
}

func TestAbsorb_AmendsNewestIntersectingCommit(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)
	chain := seedChain(t, repo,
		gittest.Commit{Message: "base", Files: map[string]string{"a.txt": "1\n"}},
		gittest.Commit{Message: "add b", Files: map[string]string{"b.txt": "1\n2\n3\n"}},
	)
	older := chain[1]

	ranges := ownership.NewWorkspaceRanges()
	ranges.Apply(ownership.CommitChange{
		StackID: "S", CommitID: older.String(), Path: "b.txt",
		Hunks: []hunk.Hunk{{NewStart: 1, NewLines: 3}},
	})

	result, err := commit.Absorb(ctx, repo, ranges, []commit.AbsorbChange{
		{Path: "b.txt", Hunk: hunk.Hunk{OldStart: 2, OldLines: 1, NewStart: 2, NewLines: 1, Lines: []string{"-2", "+2updated"}}},
	}, func(git.Hash) []git.Hash { return nil }, gittest.Signature)
	require.NoError(t, err)
	require.Empty(t, result.Unclaimed)
	require.Contains(t, result.Amended, older)

	outcome := result.Amended[older]
	content := readBlobAt(t, repo, mustTreeOf(t, repo, outcome.Commit), "b.txt")
	assert.Equal(t, "1\n2updated\n3\n", content)
}

func mustTreeOf(t *testing.T, repo *git.Repository, commitHash git.Hash) git.Hash {
	t.Helper()
	tree, err := repo.PeelToTree(context.Background(), commitHash.String())
	require.NoError(t, err)
	return tree
}

func readBlobAt(t *testing.T, repo *git.Repository, tree git.Hash, path string) string {
	t.Helper()
	hash, err := repo.HashAt(context.Background(), tree.String(), path)
	require.NoError(t, err)
	var buf strings.Builder
	require.NoError(t, repo.ReadObject(context.Background(), git.BlobType, hash, &buf))
	return buf.String()
}

func assertPathAbsent(t *testing.T, repo *git.Repository, tree git.Hash, path string) {
	t.Helper()
	_, err := repo.HashAt(context.Background(), tree.String(), path)
	assert.ErrorIs(t, err, git.ErrNotExist)
}
