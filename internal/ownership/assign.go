package ownership

import "github.com/gitbutlerapp/but/internal/hunk"

// AssignmentRejection reports a hunk that could not be moved to the
// requested stack because a prior committed change already locks it to
// another stack.
type AssignmentRejection struct {
	Path     string
	Hunk     hunk.Hunk
	LockedBy StackID
	Reason   string
}

// AssignHunk decides which stack a worktree hunk belongs to.
//
// claims maps each applied stack to its current OwnershipClaims; order
// gives the stacks' render priority (lower index wins ties) and must list
// every key of claims. ranges is the committed-range tracker built for the
// same set of applied stacks. target is the stack the caller would like
// the hunk assigned to, or "" to let the hunk fall through to "no
// preference".
//
// The rules, in order: a claim whose range exactly matches the hunk wins;
// otherwise any claim whose range intersects the hunk wins; otherwise a
// locked committed range wins (assigning elsewhere is rejected unless
// target is empty or already the locking stack); otherwise the hunk is
// unassigned and target is returned verbatim.
func AssignHunk(
	claims map[StackID][]OwnershipClaim,
	order []StackID,
	ranges *WorkspaceRanges,
	path string,
	h hunk.Hunk,
	target StackID,
) (StackID, *AssignmentRejection) {
	query := hunk.Range{Start: h.NewStart, Lines: h.NewLines}

	var exact, intersecting *StackID
	for _, stackID := range order {
		for _, c := range claims[stackID] {
			if c.Path != path {
				continue
			}
			if c.IsFull() {
				if intersecting == nil {
					s := stackID
					intersecting = &s
				}
				continue
			}
			for _, r := range c.Ranges {
				cr := r.Range()
				switch {
				case cr.Start == query.Start && cr.Lines == query.Lines:
					if exact == nil {
						s := stackID
						exact = &s
					}
				case cr.Intersects(query.Start, query.Lines):
					if intersecting == nil {
						s := stackID
						intersecting = &s
					}
				}
			}
		}
		if exact != nil {
			break
		}
	}

	switch {
	case exact != nil:
		return *exact, nil
	case intersecting != nil:
		return *intersecting, nil
	}

	if locked := ranges.Intersection(path, h.NewStart, h.NewLines); len(locked) > 0 {
		lockedStack := locked[0].StackID
		if target == "" || target == lockedStack {
			return lockedStack, nil
		}
		return lockedStack, &AssignmentRejection{
			Path:     path,
			Hunk:     h,
			LockedBy: lockedStack,
			Reason:   "hunk is locked to a committed change in another stack",
		}
	}

	return target, nil
}
