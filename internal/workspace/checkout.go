package workspace

import (
	"context"
	"fmt"

	"github.com/gitbutlerapp/but/internal/git"
)

// Checkout writes res as a workspace commit and force-checks it out,
// per spec.md §4.H: tracked-file changes are overwritten, and untracked
// files are removed only where they conflict with a path the new tree
// introduces.
func Checkout(ctx context.Context, repo *git.Repository, res ComposeResult) (git.Hash, error) {
	commit, err := WriteCommit(ctx, repo, res)
	if err != nil {
		return "", fmt.Errorf("workspace: write commit: %w", err)
	}
	if err := repo.ForceCheckoutCommit(ctx, commit); err != nil {
		return "", fmt.Errorf("workspace: checkout: %w", err)
	}
	return commit, nil
}

// ProjectConflict reports that, during recovery, an uncommitted worktree
// change could not be reapplied against a freshly recomposed workspace
// tree and was therefore neither dropped nor silently merged.
type ProjectConflict struct {
	Path   string
	Reason string
}

func (e *ProjectConflict) Error() string {
	return fmt.Sprintf("workspace: %s could not be reapplied: %s", e.Path, e.Reason)
}

// Recover implements spec.md §4.H's recovery path: the caller's HEAD was
// not the workspace commit at startup (the user checked out a plain
// commit, or the workspace ref was stale). It recomposes a fresh
// workspace commit from the currently applied stacks and reports, rather
// than drops, any worktree change that fails to reapply against it.
//
// worktreeTree is the tree of the caller's current HEAD plus its
// uncommitted changes (the caller is responsible for building this,
// typically via a throwaway index write); Recover 3-way-merges it onto
// the new composition with priorTree as the merge base.
func Recover(ctx context.Context, repo *git.Repository, req ComposeRequest, priorTree, worktreeTree git.Hash) (ComposeResult, []ProjectConflict, error) {
	res, err := Compose(ctx, repo, req)
	if err != nil {
		return ComposeResult{}, nil, err
	}
	if priorTree.IsZero() || worktreeTree.IsZero() || worktreeTree == priorTree {
		return res, nil, nil
	}

	merged, err := repo.ThreeWayMergeTrees(ctx, priorTree, res.Tree, worktreeTree)
	if err != nil {
		return ComposeResult{}, nil, fmt.Errorf("workspace: reapply worktree: %w", err)
	}
	if !merged.Conflicted {
		res.Tree = merged.Tree
		return res, nil, nil
	}

	conflicts := make([]ProjectConflict, 0, len(merged.ConflictPaths))
	for _, path := range merged.ConflictPaths {
		conflicts = append(conflicts, ProjectConflict{Path: path, Reason: "conflicts with recomposed workspace tree"})
	}
	return res, conflicts, nil
}
