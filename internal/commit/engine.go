package commit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/ownership"
	"github.com/gitbutlerapp/but/internal/rebase"
)

// ChangeIDHeader is the commit trailer key that carries a commit's stable
// identity, preserved verbatim across amends and rebases.
const ChangeIDHeader = "change-id"

// Outcome reports what a commit-engine operation did: the commit it wrote
// (or amended), the stack's new head once any descendants were rebased
// onto it, and the rewrites that rebase performed.
type Outcome struct {
	// NoChange is true when the requested selection was empty; in this
	// case no commit is written and Commit/NewHead are zero.
	NoChange bool

	Commit   git.Hash
	NewHead  git.Hash
	Rewrites []rebase.CommitResult
}

// CreateCommitRequest is create_commit: build a tree by applying
// Selection to Parent's tree, write a new commit on top of Parent, and
// rebase Descendants (the stack's existing commits on top of Parent,
// oldest first) onto it.
type CreateCommitRequest struct {
	StackID     ownership.StackID
	Parent      git.Hash
	Message     git.CommitMessage
	Selection   DiffSelection
	Descendants []git.Hash
	Author      git.Signature
	Committer   git.Signature
}

// CreateCommit implements spec.md §4.G's create_commit.
func CreateCommit(ctx context.Context, repo *git.Repository, req CreateCommitRequest) (Outcome, error) {
	if req.Selection.Empty() {
		return Outcome{NoChange: true}, nil
	}

	parent, err := repo.ReadCommit(ctx, req.Parent.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("create-commit: read parent: %w", err)
	}

	tree, err := applyToTree(ctx, repo, parent.Tree, req.Selection)
	if err != nil {
		return Outcome{}, fmt.Errorf("create-commit: %w", err)
	}

	headers := map[string][]string{ChangeIDHeader: {uuid.NewString()}}
	newCommit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      tree,
		Message:   rebase.BuildMessage(req.Message, headers),
		Parents:   []git.Hash{req.Parent},
		Author:    &req.Author,
		Committer: &req.Committer,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("create-commit: write: %w", err)
	}

	return rebaseDescendants(ctx, repo, newCommit, req.Descendants, req.Committer)
}

// AmendRequest is amend: fold Selection into Target's own tree, then
// rebase Descendants (Target's existing children in the stack, oldest
// first) onto the amended commit.
type AmendRequest struct {
	StackID     ownership.StackID
	Target      git.Hash
	Selection   DiffSelection
	Descendants []git.Hash
	Committer   git.Signature
}

// Amend implements spec.md §4.G's amend.
func Amend(ctx context.Context, repo *git.Repository, req AmendRequest) (Outcome, error) {
	if req.Selection.Empty() {
		return Outcome{NoChange: true}, nil
	}

	target, err := repo.ReadCommit(ctx, req.Target.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("amend: read target: %w", err)
	}
	if len(target.Parents) == 0 {
		return Outcome{}, fmt.Errorf("amend: commit %s has no parent", req.Target.Short())
	}

	tree, err := applyToTree(ctx, repo, target.Tree, req.Selection)
	if err != nil {
		return Outcome{}, fmt.Errorf("amend: %w", err)
	}

	newCommit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      tree,
		Message:   rebase.BuildMessage(target.Message, target.Headers),
		Parents:   []git.Hash{target.Parents[0]},
		Author:    &target.Author,
		Committer: &req.Committer,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("amend: write: %w", err)
	}

	return rebaseDescendants(ctx, repo, newCommit, req.Descendants, req.Committer)
}

func rebaseDescendants(ctx context.Context, repo *git.Repository, newCommit git.Hash, descendants []git.Hash, committer git.Signature) (Outcome, error) {
	if len(descendants) == 0 {
		return Outcome{Commit: newCommit, NewHead: newCommit}, nil
	}

	newHead, results, err := rebase.CherryRebaseGroup(ctx, repo, newCommit, descendants, committer)
	if err != nil {
		return Outcome{}, fmt.Errorf("rebase descendants: %w", err)
	}
	return Outcome{Commit: newCommit, NewHead: newHead, Rewrites: results}, nil
}
