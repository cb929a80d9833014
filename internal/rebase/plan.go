package rebase

import (
	"go.abhg.dev/container/ring"

	"github.com/gitbutlerapp/but/internal/git"
)

// SegmentIndex and CommitIndex identify nodes in a Plan's arena, avoiding
// cyclic Go references between segments and the commits/edges that
// connect them.
type SegmentIndex int
type CommitIndex int

// Segment is one contiguous run of commits sharing a ref (a stack or one
// of its sub-branch segment heads).
type Segment struct {
	Name    string
	Commits []CommitIndex
}

// Edge connects one segment to another at specific commit offsets, so
// that a segment can have more than one outgoing parent edge (an octopus
// merge point). SrcCommit/DstCommit are nil when the edge attaches at a
// segment boundary rather than a specific commit.
type Edge struct {
	SrcSegment SegmentIndex
	SrcCommit  *CommitIndex
	DstSegment SegmentIndex
	DstCommit  *CommitIndex

	// Order preserves the parent slot this edge occupies, so octopus
	// merges can be reconstructed with their original parent order.
	Order int
}

// Plan is an editor plan: a DAG of segments and commits that can be
// reordered, dropped, or combined before being replayed with
// CherryRebaseGroup.
type Plan struct {
	Commits  []git.Hash
	Segments []Segment
	Edges    []Edge
}

// AddCommit appends a commit to the arena and returns its index.
func (p *Plan) AddCommit(hash git.Hash) CommitIndex {
	p.Commits = append(p.Commits, hash)
	return CommitIndex(len(p.Commits) - 1)
}

// AddSegment appends an empty segment and returns its index.
func (p *Plan) AddSegment(name string) SegmentIndex {
	p.Segments = append(p.Segments, Segment{Name: name})
	return SegmentIndex(len(p.Segments) - 1)
}

// AppendCommit attaches an existing commit index to the end of a segment.
func (p *Plan) AppendCommit(seg SegmentIndex, commit CommitIndex) {
	p.Segments[seg].Commits = append(p.Segments[seg].Commits, commit)
}

// Linearize performs a topological walk of the plan starting at start,
// driven by a segment work-list and a seen-set keyed by commit hash: each
// segment is dequeued, its unseen commits (in order) are emitted, and
// every outgoing edge whose source commit has already been seen enqueues
// its destination segment. The result is oldest-first, suitable for
// CherryRebaseGroup.
func (p *Plan) Linearize(start SegmentIndex) []git.Hash {
	type work struct {
		seg  SegmentIndex
		from int
	}

	var queue ring.Q[work]
	queue.Push(work{seg: start})
	seen := make(map[git.Hash]bool)
	var order []git.Hash

	for !queue.Empty() {
		w := queue.Pop()

		seg := p.Segments[w.seg]
		for _, ci := range seg.Commits[w.from:] {
			h := p.Commits[ci]
			if seen[h] {
				continue
			}
			seen[h] = true
			order = append(order, h)
		}

		for _, e := range p.Edges {
			if e.SrcSegment != w.seg {
				continue
			}
			if e.SrcCommit != nil && !seen[p.Commits[*e.SrcCommit]] {
				continue
			}
			from := 0
			if e.DstCommit != nil {
				from = int(*e.DstCommit)
			}
			queue.Push(work{seg: e.DstSegment, from: from})
		}
	}

	return order
}
