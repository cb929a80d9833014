// Package rebase implements the object-graph rebase and cherry-pick
// engine: replaying a sequence of commits onto a new base entirely via
// tree merges, producing conflicted commits as first-class objects
// rather than stopping for user intervention.
package rebase

import (
	"context"
	"fmt"

	"github.com/gitbutlerapp/but/internal/conflict"
	"github.com/gitbutlerapp/but/internal/git"
)

// CommitResult reports the outcome of replaying one commit.
type CommitResult struct {
	OldHash    git.Hash
	NewHash    git.Hash
	Conflicted bool
}

// CherryRebaseGroup replays ids, in order, onto base. For each commit C
// being replayed with its original parent P, it computes
// merge(base=P.tree, ours=new_parent.tree, theirs=C.tree): a clean result
// is written as an ordinary commit with C's message, author, and headers
// (change-id preserved); a conflicted result is written as a conflicted
// commit per internal/conflict, with a "conflicted" header replacing any
// the source commit already carried.
//
// committer signs every rewritten commit; each commit's original author
// is preserved.
func CherryRebaseGroup(ctx context.Context, repo *git.Repository, base git.Hash, ids []git.Hash, committer git.Signature) (git.Hash, []CommitResult, error) {
	newParent := base
	results := make([]CommitResult, 0, len(ids))

	for _, id := range ids {
		c, err := repo.ReadCommit(ctx, id.String())
		if err != nil {
			return "", nil, fmt.Errorf("cherry-rebase: read %s: %w", id.Short(), err)
		}
		if len(c.Parents) == 0 {
			return "", nil, fmt.Errorf("cherry-rebase: commit %s has no parent", id.Short())
		}

		parent, err := repo.ReadCommit(ctx, c.Parents[0].String())
		if err != nil {
			return "", nil, fmt.Errorf("cherry-rebase: read parent of %s: %w", id.Short(), err)
		}
		newParentCommit, err := repo.ReadCommit(ctx, newParent.String())
		if err != nil {
			return "", nil, fmt.Errorf("cherry-rebase: read %s: %w", newParent.Short(), err)
		}

		newHash, conflicted, err := replayOne(ctx, repo, c, parent, newParentCommit, committer)
		if err != nil {
			return "", nil, fmt.Errorf("cherry-rebase: replay %s: %w", id.Short(), err)
		}

		results = append(results, CommitResult{OldHash: id, NewHash: newHash, Conflicted: conflicted})
		newParent = newHash
	}

	return newParent, results, nil
}

func replayOne(ctx context.Context, repo *git.Repository, c, parent, newParentCommit *git.Commit, committer git.Signature) (git.Hash, bool, error) {
	baseTree, err := conflict.EffectiveTree(ctx, repo, parent.Tree)
	if err != nil {
		return "", false, fmt.Errorf("effective tree of parent: %w", err)
	}
	oursTree, err := conflict.EffectiveTree(ctx, repo, newParentCommit.Tree)
	if err != nil {
		return "", false, fmt.Errorf("effective tree of new parent: %w", err)
	}
	theirsTree, err := conflict.EffectiveTree(ctx, repo, c.Tree)
	if err != nil {
		return "", false, fmt.Errorf("effective tree of commit: %w", err)
	}

	result, err := repo.ThreeWayMergeTrees(ctx, baseTree, oursTree, theirsTree)
	if err != nil {
		return "", false, fmt.Errorf("merge: %w", err)
	}

	headers := copyHeaders(c.Headers)
	delete(headers, conflict.HeaderKey)

	tree := result.Tree
	if result.Conflicted {
		// ours is the new destination, always preferred for the
		// auto-resolution, per the rebase side-preference rule.
		encoded, header, err := conflict.Encode(ctx, repo, result, conflict.SideOurs)
		if err != nil {
			return "", false, fmt.Errorf("encode conflict: %w", err)
		}
		tree = encoded
		headers[conflict.HeaderKey] = []string{header.String()}
	}

	author := c.Author
	newHash, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      tree,
		Message:   BuildMessage(c.Message, headers),
		Parents:   []git.Hash{newParentCommit.Hash},
		Author:    &author,
		Committer: &committer,
	})
	if err != nil {
		return "", false, fmt.Errorf("write commit: %w", err)
	}
	return newHash, result.Conflicted, nil
}

// ComputeUpdatedBranchHead implements compute_updated_branch_head: given a
// stack whose head moved out from under its uncommitted working tree, it
// folds that working tree onto the new head.
//
// If newHead equals oldHead, it is a no-op returning them unchanged. If
// the merge is clean, the working tree becomes the 3-way-merged result.
// If conflicted, a conflicted commit is written on top of newHead and its
// auto-resolution becomes the new working tree.
func ComputeUpdatedBranchHead(ctx context.Context, repo *git.Repository, oldHead, newHead, workingTree git.Hash, committer git.Signature) (head, tree git.Hash, err error) {
	if newHead == oldHead {
		return oldHead, workingTree, nil
	}

	oldHeadCommit, err := repo.ReadCommit(ctx, oldHead.String())
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: read old head: %w", err)
	}
	newHeadCommit, err := repo.ReadCommit(ctx, newHead.String())
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: read new head: %w", err)
	}

	baseTree, err := conflict.EffectiveTree(ctx, repo, oldHeadCommit.Tree)
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: effective tree: %w", err)
	}
	oursTree, err := conflict.EffectiveTree(ctx, repo, newHeadCommit.Tree)
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: effective tree: %w", err)
	}

	result, err := repo.ThreeWayMergeTrees(ctx, baseTree, oursTree, workingTree)
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: merge: %w", err)
	}

	if !result.Conflicted {
		return newHead, result.Tree, nil
	}

	encoded, header, err := conflict.Encode(ctx, repo, result, conflict.SideOurs)
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: encode conflict: %w", err)
	}

	conflictedHash, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      encoded,
		Message:   BuildMessage(git.CommitMessage{Subject: "Uncommitted changes [conflicted]"}, map[string][]string{conflict.HeaderKey: {header.String()}}),
		Parents:   []git.Hash{newHead},
		Author:    &committer,
		Committer: &committer,
	})
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: write conflicted commit: %w", err)
	}

	autoResolution, err := conflict.EffectiveTree(ctx, repo, encoded)
	if err != nil {
		return "", "", fmt.Errorf("compute-updated-branch-head: auto-resolution: %w", err)
	}
	return conflictedHash, autoResolution, nil
}

func copyHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}
