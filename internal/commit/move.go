package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/ownership"
	"github.com/gitbutlerapp/but/internal/rebase"
)

// DependentChangeError reports that a move or drop touches lines other
// commits or the worktree depend on, per spec.md §4.G's dependent-change
// check.
type DependentChangeError struct {
	Path       string
	BlockingBy []string // commit ids (or "<worktree>") that depend on the change
}

func (e *DependentChangeError) Error() string {
	return fmt.Sprintf("move-commit-file: %s has dependent changes in %s", e.Path, strings.Join(e.BlockingBy, ", "))
}

// MoveCommitFileRequest is move_commit_file: move the paths named by
// Paths from Source into Dest. Exactly one of Source or Dest must be an
// ancestor of the other, within the same stack.
//
// Chain is every commit strictly between Source and Dest (exclusive of
// both), oldest-first along the direction from the ancestor to the
// descendant. Descendants is every commit after the descendant of the
// pair (Source if Dest is the ancestor, Dest otherwise), oldest-first;
// these are replayed again once the move lands.
//
// Ranges is the stack's current WorkspaceRanges, used for the
// dependent-change check: Source's change to each path in Paths must
// have no commit_dependencies, inverse_commit_dependencies, or
// commit_dependent_diffs (uncommitted worktree hunks), per spec.md §4.G.
// WorktreeHits reports any uncommitted hunks on a moved path, for the
// commit_dependent_diffs leg of that check.
type MoveCommitFileRequest struct {
	StackID      ownership.StackID
	Source       git.Hash
	Dest         git.Hash
	Paths        []string
	Chain        []git.Hash
	Descendants  []git.Hash
	Ranges       *ownership.WorkspaceRanges
	WorktreeHits map[string]bool // path -> has an uncommitted hunk on it
	Committer    git.Signature
}

// MoveOutcome reports the commits move_commit_file rewrote: the
// destination commit that gained the moved paths, the source commit
// that lost them, and the stack's new head once any descendants beyond
// the pair were replayed.
type MoveOutcome struct {
	NewDest   git.Hash
	NewSource git.Hash
	NewHead   git.Hash
	Rewrites  []rebase.CommitResult
}

// MoveCommitFile implements spec.md §4.G's move_commit_file.
func MoveCommitFile(ctx context.Context, repo *git.Repository, req MoveCommitFileRequest) (MoveOutcome, error) {
	if req.Source == req.Dest {
		return MoveOutcome{}, errors.New("move-commit-file: source and dest are the same commit")
	}

	destIsAncestor := repo.IsAncestor(ctx, req.Dest, req.Source)
	sourceIsAncestor := repo.IsAncestor(ctx, req.Source, req.Dest)
	if !destIsAncestor && !sourceIsAncestor {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: %s and %s are not in an ancestor relationship", req.Source.Short(), req.Dest.Short())
	}

	sourceID := req.Source.String()
	for _, path := range req.Paths {
		var blocking []string
		for _, d := range req.Ranges.Dependents(sourceID) {
			if d.Path == path {
				blocking = append(blocking, d.CommitID)
			}
		}
		for _, d := range req.Ranges.DependsOn(sourceID) {
			if d.Path == path {
				blocking = append(blocking, d.DependsOn)
			}
		}
		if req.WorktreeHits[path] {
			blocking = append(blocking, "<worktree>")
		}
		if len(blocking) > 0 {
			return MoveOutcome{}, &DependentChangeError{Path: path, BlockingBy: blocking}
		}
	}

	source, err := repo.ReadCommit(ctx, req.Source.String())
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: read source: %w", err)
	}
	dest, err := repo.ReadCommit(ctx, req.Dest.String())
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: read dest: %w", err)
	}
	if len(source.Parents) == 0 {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: source %s has no parent", req.Source.Short())
	}

	if destIsAncestor {
		return moveBackward(ctx, repo, req, source, dest)
	}
	return moveForward(ctx, repo, req, source, dest)
}

// moveBackward handles the case where dest is an ancestor of source: the
// moved content is folded into the earlier commit (dest), and removed
// from the later one (source) after replaying the chain between them.
func moveBackward(ctx context.Context, repo *git.Repository, req MoveCommitFileRequest, source, dest *git.Commit) (MoveOutcome, error) {
	newDestTree, err := overwritePaths(ctx, repo, dest.Tree, req.Paths, source.Tree)
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: fold into dest: %w", err)
	}
	newDest, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      newDestTree,
		Message:   rebase.BuildMessage(dest.Message, dest.Headers),
		Parents:   dest.Parents,
		Author:    &dest.Author,
		Committer: &req.Committer,
	})
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: write dest: %w", err)
	}

	chain := append(append([]git.Hash(nil), req.Chain...), req.Source)
	_, results, err := rebase.CherryRebaseGroup(ctx, repo, newDest, chain, req.Committer)
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: replay chain: %w", err)
	}
	rebasedSource := results[len(results)-1].NewHash

	// source.Parents[0] is the ORIGINAL parent, read before rebasing;
	// its content for each path is what source looked like before it
	// introduced the moved change.
	finalSourceTree, err := overwritePaths(ctx, repo, rebasedSource, req.Paths, source.Parents[0])
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: strip from source: %w", err)
	}

	rebasedSourceCommit, err := repo.ReadCommit(ctx, rebasedSource.String())
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: read rebased source: %w", err)
	}
	finalSource, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      finalSourceTree,
		Message:   rebase.BuildMessage(rebasedSourceCommit.Message, rebasedSourceCommit.Headers),
		Parents:   rebasedSourceCommit.Parents,
		Author:    &rebasedSourceCommit.Author,
		Committer: &req.Committer,
	})
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: write final source: %w", err)
	}

	newHead, rewrites, err := replayDescendants(ctx, repo, finalSource, req.Descendants, req.Committer)
	if err != nil {
		return MoveOutcome{}, err
	}
	return MoveOutcome{NewDest: newDest, NewSource: finalSource, NewHead: newHead, Rewrites: rewrites}, nil
}

// moveForward handles the case where source is an ancestor of dest: the
// moved content is removed from the earlier commit (source), then
// re-added to the later one (dest) after replaying the chain between
// them.
func moveForward(ctx context.Context, repo *git.Repository, req MoveCommitFileRequest, source, dest *git.Commit) (MoveOutcome, error) {
	newSourceTree, err := overwritePaths(ctx, repo, source.Tree, req.Paths, source.Parents[0])
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: strip from source: %w", err)
	}
	newSource, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      newSourceTree,
		Message:   rebase.BuildMessage(source.Message, source.Headers),
		Parents:   source.Parents,
		Author:    &source.Author,
		Committer: &req.Committer,
	})
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: write source: %w", err)
	}

	chain := append(append([]git.Hash(nil), req.Chain...), req.Dest)
	_, results, err := rebase.CherryRebaseGroup(ctx, repo, newSource, chain, req.Committer)
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: replay chain: %w", err)
	}
	rebasedDest := results[len(results)-1].NewHash

	finalDestTree, err := overwritePaths(ctx, repo, rebasedDest, req.Paths, source.Tree)
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: fold into dest: %w", err)
	}

	rebasedDestCommit, err := repo.ReadCommit(ctx, rebasedDest.String())
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: read rebased dest: %w", err)
	}
	finalDest, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      finalDestTree,
		Message:   rebase.BuildMessage(rebasedDestCommit.Message, rebasedDestCommit.Headers),
		Parents:   rebasedDestCommit.Parents,
		Author:    &rebasedDestCommit.Author,
		Committer: &req.Committer,
	})
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("move-commit-file: write final dest: %w", err)
	}

	newHead, rewrites, err := replayDescendants(ctx, repo, finalDest, req.Descendants, req.Committer)
	if err != nil {
		return MoveOutcome{}, err
	}
	return MoveOutcome{NewDest: finalDest, NewSource: newSource, NewHead: newHead, Rewrites: rewrites}, nil
}

func replayDescendants(ctx context.Context, repo *git.Repository, newTip git.Hash, descendants []git.Hash, committer git.Signature) (git.Hash, []rebase.CommitResult, error) {
	if len(descendants) == 0 {
		return newTip, nil, nil
	}
	head, results, err := rebase.CherryRebaseGroup(ctx, repo, newTip, descendants, committer)
	if err != nil {
		return "", nil, fmt.Errorf("move-commit-file: replay descendants: %w", err)
	}
	return head, results, nil
}

// overwritePaths sets tree's content for each path to match source's
// content for that path, deleting the path from tree if it does not
// exist in source.
func overwritePaths(ctx context.Context, repo *git.Repository, tree git.Hash, paths []string, source git.Hash) (git.Hash, error) {
	var writes []git.BlobInfo
	var deletes []string
	for _, path := range paths {
		hash, err := repo.HashAt(ctx, source.String(), path)
		if errors.Is(err, git.ErrNotExist) {
			deletes = append(deletes, path)
			continue
		}
		if err != nil {
			return "", err
		}
		writes = append(writes, git.BlobInfo{Mode: git.RegularMode, Hash: hash, Path: path})
	}
	return repo.UpdateTree(ctx, git.UpdateTreeRequest{
		Tree:    tree,
		Writes:  sliceSeq(writes),
		Deletes: sliceSeq(deletes),
	})
}
