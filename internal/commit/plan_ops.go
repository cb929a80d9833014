package commit

import (
	"context"
	"fmt"
	"slices"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/rebase"
)

// Reorder implements spec.md §4.G's reorder: order is the stack's
// commits (oldest first) in their desired new sequence, replayed onto
// base with CherryRebaseGroup exactly as the original editor plan would
// linearize them.
func Reorder(ctx context.Context, repo *git.Repository, base git.Hash, order []git.Hash, committer git.Signature) (git.Hash, []rebase.CommitResult, error) {
	return rebase.CherryRebaseGroup(ctx, repo, base, order, committer)
}

// UndoCommit implements spec.md §4.G's undo_commit: drop is removed from
// ids and the remainder is replayed onto base.
func UndoCommit(ctx context.Context, repo *git.Repository, base git.Hash, ids []git.Hash, drop git.Hash, committer git.Signature) (git.Hash, []rebase.CommitResult, error) {
	remaining := make([]git.Hash, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			remaining = append(remaining, id)
		}
	}
	return rebase.CherryRebaseGroup(ctx, repo, base, remaining, committer)
}

// Squash implements spec.md §4.G's squash: squashed is folded into
// target (its tree changes applied on top of target's), target's commit
// message is kept, and the combined commit replaces both entries in ids
// before the whole sequence is replayed onto base.
//
// target and squashed must be adjacent in ids, with target preceding
// squashed (squashing a commit into an earlier one).
func Squash(ctx context.Context, repo *git.Repository, base git.Hash, ids []git.Hash, target, squashed git.Hash, committer git.Signature) (git.Hash, []rebase.CommitResult, error) {
	ti, si := slices.Index(ids, target), slices.Index(ids, squashed)
	if ti < 0 || si < 0 {
		return "", nil, fmt.Errorf("squash: target %s or squashed %s not found in sequence", target.Short(), squashed.Short())
	}
	if si != ti+1 {
		return "", nil, fmt.Errorf("squash: squashed %s must immediately follow target %s", squashed.Short(), target.Short())
	}

	targetCommit, err := repo.ReadCommit(ctx, target.String())
	if err != nil {
		return "", nil, fmt.Errorf("squash: read target: %w", err)
	}
	squashedCommit, err := repo.ReadCommit(ctx, squashed.String())
	if err != nil {
		return "", nil, fmt.Errorf("squash: read squashed: %w", err)
	}

	combined, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      squashedCommit.Tree,
		Message:   rebase.BuildMessage(targetCommit.Message, targetCommit.Headers),
		Parents:   targetCommit.Parents,
		Author:    &targetCommit.Author,
		Committer: &committer,
	})
	if err != nil {
		return "", nil, fmt.Errorf("squash: write combined commit: %w", err)
	}

	sequence := make([]git.Hash, 0, len(ids)-1)
	sequence = append(sequence, ids[:ti]...)
	sequence = append(sequence, combined)
	sequence = append(sequence, ids[si+1:]...)

	return rebase.CherryRebaseGroup(ctx, repo, base, sequence, committer)
}

// Reword implements spec.md §4.G's reword: target's message is replaced
// before the whole sequence is replayed onto base, so descendants pick
// up the rewritten parent the same way any other amend propagates.
func Reword(ctx context.Context, repo *git.Repository, base git.Hash, ids []git.Hash, target git.Hash, message git.CommitMessage, committer git.Signature) (git.Hash, []rebase.CommitResult, error) {
	idx := slices.Index(ids, target)
	if idx < 0 {
		return "", nil, fmt.Errorf("reword: %s not found in sequence", target.Short())
	}

	targetCommit, err := repo.ReadCommit(ctx, target.String())
	if err != nil {
		return "", nil, fmt.Errorf("reword: read target: %w", err)
	}

	reworded, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      targetCommit.Tree,
		Message:   rebase.BuildMessage(message, targetCommit.Headers),
		Parents:   targetCommit.Parents,
		Author:    &targetCommit.Author,
		Committer: &committer,
	})
	if err != nil {
		return "", nil, fmt.Errorf("reword: write: %w", err)
	}

	sequence := slices.Clone(ids)
	sequence[idx] = reworded

	return rebase.CherryRebaseGroup(ctx, repo, base, sequence, committer)
}
