package commit

import (
	"context"
	"fmt"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/hunk"
	"github.com/gitbutlerapp/but/internal/ownership"
)

// AbsorbChange is one worktree hunk a caller wants folded into whichever
// commit introduced the lines it touches.
type AbsorbChange struct {
	Path string
	Hunk hunk.Hunk
}

// AbsorbResult reports what absorb did with each requested change.
type AbsorbResult struct {
	// Amended maps the target commit's original hash to the outcome of
	// amending it.
	Amended map[git.Hash]Outcome

	// Unclaimed holds changes that intersected no committed HunkRange
	// and so were left for the caller to keep in the worktree.
	Unclaimed []AbsorbChange
}

// DescendantsOf resolves the commits that must be rebased after amending
// a given target commit (its children in the stack, oldest first),
// mirroring the Descendants field callers already supply to Amend.
type DescendantsOf func(target git.Hash) []git.Hash

// Absorb implements spec.md §4.G's absorb: for each worktree hunk, find
// the newest commit in the stack whose HunkRanges intersect it (the last
// entry ownership.WorkspaceRanges.Intersection returns, since ranges are
// recorded oldest-applied-first) and amend it in; changes matching no
// commit are reported as Unclaimed.
//
// Changes are grouped by the commit they land on and amended with one
// Amend call per target, in the order each target is first hit by changes.
func Absorb(ctx context.Context, repo *git.Repository, ranges *ownership.WorkspaceRanges, changes []AbsorbChange, descendantsOf DescendantsOf, committer git.Signature) (AbsorbResult, error) {
	bySelection := make(map[git.Hash]DiffSelection)
	var order []git.Hash
	result := AbsorbResult{Amended: make(map[git.Hash]Outcome)}

	for _, change := range changes {
		hits := ranges.Intersection(change.Path, change.Hunk.OldStart, change.Hunk.OldLines)
		if len(hits) == 0 {
			result.Unclaimed = append(result.Unclaimed, change)
			continue
		}

		newest := hits[len(hits)-1]
		target := git.Hash(newest.CommitID)
		sel, ok := bySelection[target]
		if !ok {
			sel = DiffSelection{Files: make(map[string][]hunk.Hunk)}
			order = append(order, target)
		}
		sel.Files[change.Path] = append(sel.Files[change.Path], change.Hunk)
		bySelection[target] = sel
	}

	for _, target := range order {
		outcome, err := Amend(ctx, repo, AmendRequest{
			Target:      target,
			Selection:   bySelection[target],
			Descendants: descendantsOf(target),
			Committer:   committer,
		})
		if err != nil {
			return AbsorbResult{}, fmt.Errorf("absorb: amend %s: %w", target.Short(), err)
		}
		result.Amended[target] = outcome
	}

	return result, nil
}
