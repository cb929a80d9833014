package ownership

import "github.com/gitbutlerapp/but/internal/hunk"

// ChangeType classifies the kind of change a committed HunkRange
// represents.
type ChangeType int

const (
	Modified ChangeType = iota
	Added
	Deleted
)

// HunkRange is a committed hunk's location in a file's current (i.e.
// post-accumulated-shifts) coordinate system, together with the stack and
// commit that own it.
type HunkRange struct {
	StackID    StackID
	CommitID   string
	ChangeType ChangeType
	Start      int
	Lines      int

	// LineShift is the net number of lines this range has moved since it
	// was first committed, accumulated from edits made by later commits
	// earlier in the file.
	LineShift int
}

func (r HunkRange) toRange() hunk.Range {
	return hunk.Range{Start: r.Start, Lines: r.Lines, Deleted: r.ChangeType == Deleted}
}

func (r HunkRange) Intersects(s, n int) bool { return r.toRange().Intersects(s, n) }
func (r HunkRange) Contains(s, n int) bool   { return r.toRange().Contains(s, n) }
func (r HunkRange) CoveredBy(s, n int) bool  { return r.toRange().CoveredBy(s, n) }
func (r HunkRange) Precedes(s int) bool      { return r.toRange().Precedes(s) }
func (r HunkRange) Follows(s, n int) bool    { return r.toRange().Follows(s, n) }

// Dependency records that CommitID's hunk on Path superseded lines that
// DependsOn had introduced or last touched: CommitID is a
// commit_dependency of DependsOn, and DependsOn is an
// inverse_commit_dependency of CommitID.
type Dependency struct {
	Path      string
	CommitID  string
	DependsOn string
}

// WorkspaceRanges accumulates, per file path, the committed HunkRanges of
// every applied stack from its merge-base up to its head. It is rebuilt
// whenever a stack's commits change; nothing here mutates a commit.
type WorkspaceRanges struct {
	byPath map[string][]HunkRange
	deps   []Dependency
}

// NewWorkspaceRanges returns an empty range tracker.
func NewWorkspaceRanges() *WorkspaceRanges {
	return &WorkspaceRanges{byPath: make(map[string][]HunkRange)}
}

// Dependents returns every Dependency recorded against commitID: later
// commits whose hunks superseded lines commitID introduced
// (commit_dependencies, spec.md §4.G).
func (w *WorkspaceRanges) Dependents(commitID string) []Dependency {
	var out []Dependency
	for _, d := range w.deps {
		if d.DependsOn == commitID {
			out = append(out, d)
		}
	}
	return out
}

// DependsOn returns every Dependency recorded with commitID as the
// dependent side: earlier commits whose lines commitID's hunks
// superseded (inverse_commit_dependencies, spec.md §4.G).
func (w *WorkspaceRanges) DependsOn(commitID string) []Dependency {
	var out []Dependency
	for _, d := range w.deps {
		if d.CommitID == commitID {
			out = append(out, d)
		}
	}
	return out
}

// CommitChange describes one file touched by one commit, in the order
// commits are walked from a stack's merge-base to its head. Hunks is the
// zero-context diff of this commit against its parent, restricted to this
// path.
type CommitChange struct {
	StackID  StackID
	CommitID string
	Path     string
	Hunks    []hunk.Hunk
	Deleted  bool // the commit deletes the file outright
}

// Apply folds one commit's changes to one file into the tracker, shifting
// and superseding any HunkRanges that the new commit's edits overlap.
// Callers feed commits oldest-first for a given stack, and may interleave
// commits from different stacks as long as each stack's own commits stay
// in order.
func (w *WorkspaceRanges) Apply(c CommitChange) {
	if c.Deleted {
		w.byPath[c.Path] = []HunkRange{{
			StackID:    c.StackID,
			CommitID:   c.CommitID,
			ChangeType: Deleted,
		}}
		return
	}

	existing := w.byPath[c.Path]
	for _, h := range c.Hunks {
		existing = w.applyHunk(c.Path, existing, c.StackID, c.CommitID, h)
	}
	w.byPath[c.Path] = existing
}

func (w *WorkspaceRanges) applyHunk(path string, existing []HunkRange, stackID StackID, commitID string, h hunk.Hunk) []HunkRange {
	delta := h.NewLines - h.OldLines
	oldEnd := h.OldStart + h.OldLines

	kept := existing[:0:0]
	for _, r := range existing {
		switch {
		case r.Start >= oldEnd:
			// Entirely after the edit: shift down/up by the delta.
			r.Start += delta
			r.LineShift += delta
			kept = append(kept, r)
		case r.Start+r.Lines <= h.OldStart:
			// Entirely before the edit: untouched.
			kept = append(kept, r)
		default:
			// Overlaps the edited region: superseded by this commit's
			// change.
			if r.CommitID != commitID {
				w.deps = append(w.deps, Dependency{Path: path, CommitID: commitID, DependsOn: r.CommitID})
			}
		}
	}

	changeType := Modified
	switch {
	case h.OldLines == 0:
		changeType = Added
	case h.NewLines == 0:
		changeType = Deleted
	}

	kept = append(kept, HunkRange{
		StackID:    stackID,
		CommitID:   commitID,
		ChangeType: changeType,
		Start:      h.NewStart,
		Lines:      h.NewLines,
	})
	return kept
}

// Intersection reports every committed HunkRange, across every stack,
// whose range intersects [start, start+lines) of path.
func (w *WorkspaceRanges) Intersection(path string, start, lines int) []HunkRange {
	var out []HunkRange
	for _, r := range w.byPath[path] {
		if r.Intersects(start, lines) {
			out = append(out, r)
		}
	}
	return out
}

// Ranges returns every committed HunkRange recorded for path, in the order
// they were applied.
func (w *WorkspaceRanges) Ranges(path string) []HunkRange {
	return w.byPath[path]
}
