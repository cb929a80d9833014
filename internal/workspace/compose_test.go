package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/gittest"
	"github.com/gitbutlerapp/but/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_FoldsIndependentStacksDeterministically(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	target := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"base.txt": "0\n"}})
	targetTree := mustTree(t, repo, target)

	stackA := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"base.txt": "0\n"}},
		gittest.Commit{Message: "a", Files: map[string]string{"a.txt": "a\n"}})
	stackB := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"base.txt": "0\n"}},
		gittest.Commit{Message: "b", Files: map[string]string{"b.txt": "b\n"}})

	req := workspace.ComposeRequest{
		TargetSHA:  target,
		TargetTree: targetTree,
		Stacks: []workspace.StackInput{
			{Name: "stack-a", Head: stackA, Tree: mustTree(t, repo, stackA)},
			{Name: "stack-b", Head: stackB, Tree: mustTree(t, repo, stackB)},
		},
	}

	res, err := workspace.Compose(ctx, repo, req)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, []git.Hash{target, stackA, stackB}, res.Parents)
	assert.Equal(t, "a\n", readBlobAt(t, repo, res.Tree, "a.txt"))
	assert.Equal(t, "b\n", readBlobAt(t, repo, res.Tree, "b.txt"))

	// Order reversal must still produce the same resulting tree, since
	// each fold step merges against target_tree as base rather than
	// accumulating order-dependent state.
	reversed := req
	reversed.Stacks = []workspace.StackInput{req.Stacks[1], req.Stacks[0]}
	res2, err := workspace.Compose(ctx, repo, reversed)
	require.NoError(t, err)
	assert.Equal(t, res.Tree, res2.Tree)
}

func TestCompose_ConflictingStackIsReportedAndExcluded(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	target := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"shared.txt": "base\n"}})
	targetTree := mustTree(t, repo, target)

	ok := gittest.Seed(t, repo,
		gittest.Commit{Message: "base", Files: map[string]string{"shared.txt": "base\n"}},
		gittest.Commit{Message: "ok", Files: map[string]string{"ok.txt": "ok\n"}})
	conflicting := gittest.Seed(t, repo,
		gittest.Commit{Message: "base", Files: map[string]string{"shared.txt": "base\n"}},
		gittest.Commit{Message: "conflict", Files: map[string]string{"shared.txt": "changed\n"}})
	// A second independent edit to the same line forces a real conflict
	// against the first stack's edit once both are folded onto target.
	other := gittest.Seed(t, repo,
		gittest.Commit{Message: "base", Files: map[string]string{"shared.txt": "base\n"}},
		gittest.Commit{Message: "also-conflict", Files: map[string]string{"shared.txt": "different\n"}})

	req := workspace.ComposeRequest{
		TargetSHA:  target,
		TargetTree: targetTree,
		Stacks: []workspace.StackInput{
			{Name: "stack-conflict", Head: conflicting, Tree: mustTree(t, repo, conflicting)},
			{Name: "stack-other", Head: other, Tree: mustTree(t, repo, other)},
			{Name: "stack-ok", Head: ok, Tree: mustTree(t, repo, ok)},
		},
	}

	res, err := workspace.Compose(ctx, repo, req)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "stack-other", res.Conflicts[0].Stack)
	assert.Contains(t, res.Conflicts[0].Paths, "shared.txt")

	// The ok stack and the first (non-conflicting-against-target)
	// conflicting stack both landed.
	assert.Equal(t, "changed\n", readBlobAt(t, repo, res.Tree, "shared.txt"))
	assert.Equal(t, "ok\n", readBlobAt(t, repo, res.Tree, "ok.txt"))
	assert.NotContains(t, res.Parents, other)
	assert.Contains(t, res.Parents, conflicting)
	assert.Contains(t, res.Parents, ok)
}

func TestCheckout_ForceChecksOutComposedTree(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepository(t)

	target := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"base.txt": "0\n"}})
	stackA := gittest.Seed(t, repo, gittest.Commit{Message: "base", Files: map[string]string{"base.txt": "0\n"}},
		gittest.Commit{Message: "a", Files: map[string]string{"a.txt": "a\n"}})

	res, err := workspace.Compose(ctx, repo, workspace.ComposeRequest{
		TargetSHA:  target,
		TargetTree: mustTree(t, repo, target),
		Stacks:     []workspace.StackInput{{Name: "stack-a", Head: stackA, Tree: mustTree(t, repo, stackA)}},
	})
	require.NoError(t, err)

	commit, err := workspace.Checkout(ctx, repo, res)
	require.NoError(t, err)

	c, err := repo.ReadCommit(ctx, commit.String())
	require.NoError(t, err)
	assert.Equal(t, workspace.WorkspaceCommitTitle, c.Message.Subject)
	assert.Equal(t, workspace.Identity.Name, c.Author.Name)

	content, err := os.ReadFile(filepath.Join(repo.RootDir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(content))
}

func mustTree(t *testing.T, repo *git.Repository, commit git.Hash) git.Hash {
	t.Helper()
	tree, err := repo.PeelToTree(context.Background(), commit.String())
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
