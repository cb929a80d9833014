// Package workspace synthesizes the working tree GitButler actually
// checks out: the fold of every applied stack's tree atop the default
// target, as a single octopus-parented workspace commit.
package workspace

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gitbutlerapp/but/internal/conflict"
	"github.com/gitbutlerapp/but/internal/git"
)

// WorkspaceCommitTitle is the fixed, grep-able subject line every
// workspace commit carries, so tooling can recognize and skip past it
// without consulting a ref.
const WorkspaceCommitTitle = "GITBUTLER_WORKSPACE_COMMIT_TITLE"

// Identity is the reserved author/committer signature workspace commits
// are written with, distinguishing them from any real user's commits.
var Identity = git.Signature{Name: "GitButler", Email: "gitbutler@gitbutler.com"}

// StackInput is one applied stack's current position, in the order the
// composer must fold them (§4.H: deterministic order = stack.order ASC).
type StackInput struct {
	Name string
	Head git.Hash
	Tree git.Hash
}

// ComposeRequest describes the inputs to a single composition.
type ComposeRequest struct {
	TargetSHA  git.Hash
	TargetTree git.Hash
	Stacks     []StackInput
}

// StackConflict reports that a stack's tree could not be folded in
// cleanly; the composer excludes it from the resulting tree so the rest
// of the workspace still composes, leaving the UI to mark this stack.
type StackConflict struct {
	Stack string
	Paths []string
}

// ComposeResult is the output of Compose: the workspace commit's
// ingredients, not yet written as a commit (callers decide whether to
// write and check it out via Checkout).
type ComposeResult struct {
	Tree      git.Hash
	Parents   []git.Hash
	Conflicts []StackConflict
}

// Compose implements spec.md §4.H: fold each applied stack's tree onto
// the target, 3-way-merging with the target as base at every step (not
// the running accumulator), in stack.order ASC. A stack whose tree
// conflicts with the fold is reported in Conflicts and excluded from the
// result, rather than silently auto-resolved or aborting the rest of the
// composition.
func Compose(ctx context.Context, repo *git.Repository, req ComposeRequest) (ComposeResult, error) {
	effective := make([]git.Hash, len(req.Stacks))

	// Resolving each stack's effective tree (promoting .auto-resolution
	// for any stack whose own tip is itself conflicted, per §4.E) touches
	// no shared state and is independent per stack, unlike the fold
	// itself, so it is the one step worth parallelizing.
	group, gctx := errgroup.WithContext(ctx)
	for i, stack := range req.Stacks {
		group.Go(func() error {
			tree, err := conflict.EffectiveTree(gctx, repo, stack.Tree)
			if err != nil {
				return fmt.Errorf("compose: effective tree for %s: %w", stack.Name, err)
			}
			effective[i] = tree
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ComposeResult{}, err
	}

	result := ComposeResult{
		Tree:    req.TargetTree,
		Parents: []git.Hash{req.TargetSHA},
	}
	for i, stack := range req.Stacks {
		merged, err := repo.ThreeWayMergeTrees(ctx, req.TargetTree, result.Tree, effective[i])
		if err != nil {
			return ComposeResult{}, fmt.Errorf("compose: merge %s: %w", stack.Name, err)
		}
		if merged.Conflicted {
			result.Conflicts = append(result.Conflicts, StackConflict{Stack: stack.Name, Paths: merged.ConflictPaths})
			continue
		}
		result.Tree = merged.Tree
		result.Parents = append(result.Parents, stack.Head)
	}

	return result, nil
}

// WriteCommit writes res as a workspace commit: the reserved title,
// reserved identity, and the parent/tree set Compose computed.
func WriteCommit(ctx context.Context, repo *git.Repository, res ComposeResult) (git.Hash, error) {
	return repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      res.Tree,
		Message:   WorkspaceCommitTitle,
		Parents:   res.Parents,
		Author:    &Identity,
		Committer: &Identity,
	})
}
