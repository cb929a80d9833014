package oplog

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/gitbutlerapp/but/internal/git"
	"go.abhg.dev/log/silog"
)

// DefaultRef is the reference oplog snapshots are chained under.
const DefaultRef = "refs/gitbutler/oplog"

var identity = git.Signature{Name: "gitbutler-oplog", Email: "oplog@gitbutler.com"}

// Log is a linear, append-only chain of snapshot commits at a single
// ref, forming spec.md §4.I's oplog.
type Log struct {
	repo *git.Repository
	ref  string
	log  *silog.Logger
}

// New returns a Log chained at ref. A nil log disables logging. An
// empty ref defaults to DefaultRef.
func New(repo *git.Repository, ref string, log *silog.Logger) *Log {
	if ref == "" {
		ref = DefaultRef
	}
	if log == nil {
		log = silog.Nop()
	}
	return &Log{repo: repo, ref: ref, log: log}
}

// Latest returns the current tip of the log, or the zero hash if the
// log is empty.
func (l *Log) Latest(ctx context.Context) (git.Hash, error) {
	hash, err := l.repo.PeelToCommit(ctx, l.ref)
	if errors.Is(err, git.ErrNotExist) {
		return "", nil
	}
	return hash, err
}

// Append writes tree as a new snapshot commit on top of the log's
// current tip and advances the ref to it, retrying the compare-and-swap
// on a lost race exactly as the teacher's metadata store does.
func (l *Log) Append(ctx context.Context, tree git.Hash, message string) (git.Hash, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		prev, err := l.Latest(ctx)
		if err != nil {
			return "", fmt.Errorf("oplog: read tip: %w", err)
		}

		var parents []git.Hash
		if !prev.IsZero() && prev != "" {
			parents = []git.Hash{prev}
		}

		commit, err := l.repo.CommitTree(ctx, git.CommitTreeRequest{
			Tree:      tree,
			Message:   message,
			Parents:   parents,
			Author:    &identity,
			Committer: &identity,
		})
		if err != nil {
			return "", fmt.Errorf("oplog: write snapshot: %w", err)
		}

		if err := l.repo.SetRef(ctx, git.SetRefRequest{Ref: l.ref, Hash: commit, OldHash: prev}); err != nil {
			lastErr = err
			l.log.Warn("oplog: ref update lost a race, retrying", "error", err)
			continue
		}
		return commit, nil
	}
	return "", fmt.Errorf("oplog: advance ref after retries: %w", lastErr)
}

// History walks the log from its tip backward to its root, oldest
// snapshot last.
func (l *Log) History(ctx context.Context) iter.Seq2[*git.Commit, error] {
	return func(yield func(*git.Commit, error) bool) {
		next, err := l.Latest(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for !next.IsZero() && next != "" {
			commit, err := l.repo.ReadCommit(ctx, next.String())
			if err != nil {
				yield(nil, fmt.Errorf("oplog: read snapshot %s: %w", next.Short(), err))
				return
			}
			if !yield(commit, nil) {
				return
			}
			if len(commit.Parents) == 0 {
				return
			}
			next = commit.Parents[0]
		}
	}
}
