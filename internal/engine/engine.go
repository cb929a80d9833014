// Package engine wires the object store, metadata store, ownership
// engine, commit engine, workspace composer, and oplog behind the
// operations spec.md §4 names, grounded on the teacher's
// internal/gs.Service shape: a thin struct holding its collaborators,
// built by a single constructor, with methods that do nothing but
// validate, delegate, and wrap errors.
package engine

import (
	"context"
	"fmt"
	"sort"

	"go.abhg.dev/log/silog"

	"github.com/gitbutlerapp/but/internal/cmputil"
	"github.com/gitbutlerapp/but/internal/commit"
	"github.com/gitbutlerapp/but/internal/engine/errs"
	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/hunk"
	"github.com/gitbutlerapp/but/internal/oplog"
	"github.com/gitbutlerapp/but/internal/ownership"
	"github.com/gitbutlerapp/but/internal/projectlock"
	"github.com/gitbutlerapp/but/internal/store"
	"github.com/gitbutlerapp/but/internal/workspace"
)

// Config is the engine's ambient, non-network configuration, following
// the teacher's InitOptions/ConfigOptions convention of a plain struct
// with defaults rather than functional options.
type Config struct {
	// DefaultAssignee is the stack an unclaimed worktree hunk falls to
	// when AssignHunk returns no preference, per spec.md §4.D's "the
	// caller may assign to the selected-for-changes stack".
	DefaultAssignee ownership.StackID
}

// Service is the engine's public façade.
type Service struct {
	repo  *git.Repository
	store *store.Store
	lock  *projectlock.WorktreeLock
	oplog *oplog.Log
	cfg   Config
	log   *silog.Logger
}

// New builds a Service operating on repo, persisting stack and default-
// target records to st, guarding worktree access through lock, and
// snapshotting mutations to ol. A nil log discards messages, matching
// every other package in this module.
func New(repo *git.Repository, st *store.Store, lock *projectlock.WorktreeLock, ol *oplog.Log, cfg Config, log *silog.Logger) *Service {
	if log == nil {
		log = silog.Nop()
	}
	return &Service{repo: repo, store: st, lock: lock, oplog: ol, cfg: cfg, log: log}
}

// Lock returns the service's in-process worktree lock, so callers can
// acquire the tokens every mutating method below requires.
func (s *Service) Lock() *projectlock.WorktreeLock { return s.lock }

// ListStacks returns every recorded stack, ordered by Order ascending.
func (s *Service) ListStacks(_ *projectlock.ReadToken) ([]store.Stack, error) {
	stacks, err := s.store.ListStacks()
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return stacks, nil
}

// GetStack returns the stack recorded under id.
func (s *Service) GetStack(_ *projectlock.ReadToken, id ownership.StackID) (store.Stack, error) {
	st, err := s.store.GetStack(id)
	if err != nil {
		return store.Stack{}, errs.New(errs.NotFound, err)
	}
	return st, nil
}

// UpsertStack creates or updates a stack record. tok proves the caller
// holds exclusive worktree access, since a stack's ownership claims are
// meaningless without it.
func (s *Service) UpsertStack(tok *projectlock.WriteToken, st store.Stack) (store.Stack, error) {
	if tok == nil {
		return store.Stack{}, errs.Newf(errs.InvalidInput, "upsert stack: write token required")
	}
	out, err := s.store.UpsertStack(st)
	if err != nil {
		return store.Stack{}, errs.New(errs.IO, err)
	}
	return out, nil
}

// DeleteStack removes a stack record, per spec.md §3's explicit
// unapply-and-delete lifecycle step.
func (s *Service) DeleteStack(tok *projectlock.WriteToken, id ownership.StackID) error {
	if tok == nil {
		return errs.Newf(errs.InvalidInput, "delete stack: write token required")
	}
	if err := s.store.DeleteStack(id); err != nil {
		return errs.New(errs.NotFound, err)
	}
	return nil
}

// ReorderStacks assigns a new render priority to the named stacks.
func (s *Service) ReorderStacks(tok *projectlock.WriteToken, ids []ownership.StackID) error {
	if tok == nil {
		return errs.Newf(errs.InvalidInput, "reorder stacks: write token required")
	}
	if err := s.store.Reorder(ids); err != nil {
		return errs.New(errs.IO, err)
	}
	return nil
}

// DefaultTarget returns the project's current integration base.
func (s *Service) DefaultTarget(_ *projectlock.ReadToken) (store.DefaultTarget, error) {
	target, err := s.store.DefaultTarget()
	if err != nil {
		return store.DefaultTarget{}, errs.New(errs.NotFound, err)
	}
	return target, nil
}

// SetDefaultTarget records the project's integration base.
func (s *Service) SetDefaultTarget(tok *projectlock.WriteToken, target store.DefaultTarget) error {
	if tok == nil {
		return errs.Newf(errs.InvalidInput, "set default target: write token required")
	}
	if err := s.store.SetDefaultTarget(target); err != nil {
		return errs.New(errs.IO, err)
	}
	return nil
}

// State is a point-in-time view of the trees a mutating operation
// snapshots before and after, per spec.md §4.I.
type State struct {
	HeadTree     git.Hash
	WorktreeTree git.Hash
}

// Mutate snapshots before, runs fn, then snapshots the State fn
// returns — the before/after pair spec.md §4.I requires of every
// mutating core operation, forming a linearizable unit from the point
// of view of any reader that acquires the shared lock afterward (per
// spec.md §5's "Ordering"). tok proves the caller holds exclusive
// worktree access. CreateCommit, Amend, MoveCommitFile, and
// CheckoutWorkspace funnel through this; Snapshot and RestoreSnapshot
// append to the oplog directly.
func (s *Service) Mutate(ctx context.Context, tok *projectlock.WriteToken, operation string, before State, fn func() (State, error)) error {
	if tok == nil {
		return errs.Newf(errs.InvalidInput, "%s: write token required", operation)
	}

	beforeTree, err := oplog.CreateTree(ctx, s.repo, oplog.State{
		HeadTree:     before.HeadTree,
		WorktreeTree: before.WorktreeTree,
		Metadata:     oplog.Metadata{Operation: operation},
	})
	if err != nil {
		return errs.New(errs.IO, fmt.Errorf("snapshot before %s: %w", operation, err))
	}
	if _, err := s.oplog.Append(ctx, beforeTree, fmt.Sprintf("before %s", operation)); err != nil {
		return errs.New(errs.IO, fmt.Errorf("record snapshot before %s: %w", operation, err))
	}

	after, opErr := fn()

	// The after-snapshot's HeadTree stays anchored to the pre-op tree,
	// so resolve_tree's merge-base is always "what this operation
	// changed", regardless of what the caller's HEAD has done since.
	afterTree, err := oplog.CreateTree(ctx, s.repo, oplog.State{
		HeadTree:     before.HeadTree,
		WorktreeTree: after.WorktreeTree,
		Metadata:     oplog.Metadata{Operation: operation},
	})
	if err != nil {
		return errs.New(errs.IO, fmt.Errorf("snapshot after %s: %w", operation, err))
	}
	if _, err := s.oplog.Append(ctx, afterTree, fmt.Sprintf("after %s", operation)); err != nil {
		return errs.New(errs.IO, fmt.Errorf("record snapshot after %s: %w", operation, err))
	}

	if opErr != nil {
		return opErr
	}
	return nil
}

// CreateCommit implements spec.md §4.G's create_commit for the named
// stack: it runs the commit engine, snapshots the change, and persists
// the stack's new head/tree on success.
func (s *Service) CreateCommit(ctx context.Context, tok *projectlock.WriteToken, stackID ownership.StackID, req commit.CreateCommitRequest) (commit.Outcome, error) {
	st, err := s.store.GetStack(stackID)
	if err != nil {
		return commit.Outcome{}, errs.New(errs.NotFound, err)
	}

	var outcome commit.Outcome
	err = s.Mutate(ctx, tok, "create_commit", State{HeadTree: st.Tree, WorktreeTree: st.Tree}, func() (State, error) {
		var opErr error
		outcome, opErr = commit.CreateCommit(ctx, s.repo, req)
		if opErr != nil {
			return State{}, errs.New(errs.IO, opErr)
		}
		if outcome.NoChange {
			return State{HeadTree: st.Tree, WorktreeTree: st.Tree}, nil
		}
		newTree, opErr := s.headTree(ctx, outcome.NewHead)
		if opErr != nil {
			return State{}, opErr
		}
		st.Head, st.Tree = outcome.NewHead, newTree
		return State{HeadTree: st.Tree, WorktreeTree: newTree}, nil
	})
	if err != nil {
		return commit.Outcome{}, err
	}
	if !outcome.NoChange {
		if _, err := s.store.UpsertStack(st); err != nil {
			return outcome, errs.New(errs.IO, fmt.Errorf("persist stack %s: %w", stackID, err))
		}
	}
	return outcome, nil
}

// Amend implements spec.md §4.G's amend, wired the same way as
// CreateCommit.
func (s *Service) Amend(ctx context.Context, tok *projectlock.WriteToken, stackID ownership.StackID, req commit.AmendRequest) (commit.Outcome, error) {
	st, err := s.store.GetStack(stackID)
	if err != nil {
		return commit.Outcome{}, errs.New(errs.NotFound, err)
	}

	var outcome commit.Outcome
	err = s.Mutate(ctx, tok, "amend", State{HeadTree: st.Tree, WorktreeTree: st.Tree}, func() (State, error) {
		var opErr error
		outcome, opErr = commit.Amend(ctx, s.repo, req)
		if opErr != nil {
			return State{}, errs.New(errs.IO, opErr)
		}
		if outcome.NoChange {
			return State{HeadTree: st.Tree, WorktreeTree: st.Tree}, nil
		}
		newTree, opErr := s.headTree(ctx, outcome.NewHead)
		if opErr != nil {
			return State{}, opErr
		}
		st.Head, st.Tree = outcome.NewHead, newTree
		return State{HeadTree: st.Tree, WorktreeTree: newTree}, nil
	})
	if err != nil {
		return commit.Outcome{}, err
	}
	if !outcome.NoChange {
		if _, err := s.store.UpsertStack(st); err != nil {
			return outcome, errs.New(errs.IO, fmt.Errorf("persist stack %s: %w", stackID, err))
		}
	}
	return outcome, nil
}

// MoveCommitFile implements spec.md §4.G's move_commit_file. A
// *commit.DependentChangeError from the commit engine is translated
// into the machine-readable errs.DependentChange kind.
func (s *Service) MoveCommitFile(ctx context.Context, tok *projectlock.WriteToken, stackID ownership.StackID, req commit.MoveCommitFileRequest) (commit.MoveOutcome, error) {
	st, err := s.store.GetStack(stackID)
	if err != nil {
		return commit.MoveOutcome{}, errs.New(errs.NotFound, err)
	}

	var outcome commit.MoveOutcome
	err = s.Mutate(ctx, tok, "move_commit_file", State{HeadTree: st.Tree, WorktreeTree: st.Tree}, func() (State, error) {
		var opErr error
		outcome, opErr = commit.MoveCommitFile(ctx, s.repo, req)
		if opErr != nil {
			var dep *commit.DependentChangeError
			if ok := asDependentChangeError(opErr, &dep); ok {
				return State{}, errs.DependentChangeError(dep.BlockingBy, opErr)
			}
			return State{}, errs.New(errs.IO, opErr)
		}
		newTree, opErr := s.headTree(ctx, outcome.NewHead)
		if opErr != nil {
			return State{}, opErr
		}
		st.Head, st.Tree = outcome.NewHead, newTree
		return State{HeadTree: st.Tree, WorktreeTree: newTree}, nil
	})
	if err != nil {
		return commit.MoveOutcome{}, err
	}
	if _, err := s.store.UpsertStack(st); err != nil {
		return outcome, errs.New(errs.IO, fmt.Errorf("persist stack %s: %w", stackID, err))
	}
	return outcome, nil
}

// AssignHunk decides which stack a worktree hunk belongs to, per
// spec.md §4.D, against every applied stack's current claims and
// committed ranges. A rejection is surfaced as errs.OwnershipReject
// rather than a bare error, since it is an expected, machine-readable
// outcome, not a failure of the engine itself.
func (s *Service) AssignHunk(_ *projectlock.ReadToken, ranges *ownership.WorkspaceRanges, path string, h hunk.Hunk, target ownership.StackID) (ownership.StackID, error) {
	stacks, err := s.store.ListStacks()
	if err != nil {
		return "", errs.New(errs.IO, err)
	}

	claims := make(map[ownership.StackID][]ownership.OwnershipClaim, len(stacks))
	order := make([]ownership.StackID, 0, len(stacks))
	for _, st := range stacks {
		if !st.Applied {
			continue
		}
		claims[st.ID] = st.Ownership
		order = append(order, st.ID)
	}

	assigned, rejection := ownership.AssignHunk(claims, order, ranges, path, h, target)
	if rejection != nil {
		return assigned, errs.OwnershipRejectError(*rejection)
	}
	if cmputil.Zero(assigned) {
		assigned = s.cfg.DefaultAssignee
	}
	return assigned, nil
}

// ComposeWorkspace implements spec.md §4.H's composition step: it folds
// every applied stack's tree onto the project's default target, in
// Order ascending, without writing or checking anything out.
func (s *Service) ComposeWorkspace(ctx context.Context, _ *projectlock.ReadToken) (workspace.ComposeResult, error) {
	target, err := s.store.DefaultTarget()
	if err != nil {
		return workspace.ComposeResult{}, errs.New(errs.NotFound, err)
	}
	stacks, err := s.store.ListStacks()
	if err != nil {
		return workspace.ComposeResult{}, errs.New(errs.IO, err)
	}

	applied := make([]store.Stack, 0, len(stacks))
	for _, st := range stacks {
		if st.Applied {
			applied = append(applied, st)
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].Order < applied[j].Order })

	inputs := make([]workspace.StackInput, len(applied))
	for i, st := range applied {
		inputs[i] = workspace.StackInput{Name: st.Name, Head: st.Head, Tree: st.Tree}
	}

	res, err := workspace.Compose(ctx, s.repo, workspace.ComposeRequest{
		TargetSHA:  target.SHA,
		TargetTree: s.mustTree(ctx, target.SHA),
		Stacks:     inputs,
	})
	if err != nil {
		return workspace.ComposeResult{}, errs.New(errs.IO, err)
	}
	return res, nil
}

// CheckoutWorkspace composes the current workspace and force-checks it
// out, snapshotting the change per spec.md §4.I.
func (s *Service) CheckoutWorkspace(ctx context.Context, tok *projectlock.WriteToken) (git.Hash, error) {
	res, err := s.ComposeWorkspace(ctx, nil)
	if err != nil {
		return "", err
	}

	var workspaceCommit git.Hash
	err = s.Mutate(ctx, tok, "checkout_workspace", State{HeadTree: res.Tree, WorktreeTree: res.Tree}, func() (State, error) {
		var opErr error
		workspaceCommit, opErr = workspace.Checkout(ctx, s.repo, res)
		if opErr != nil {
			return State{}, errs.New(errs.IO, opErr)
		}
		return State{HeadTree: res.Tree, WorktreeTree: res.Tree}, nil
	})
	if err != nil {
		return "", err
	}
	return workspaceCommit, nil
}

// Snapshot records the given state as a new oplog entry, bypassing
// Mutate's before/after pairing: callers that already bracket their own
// operation (e.g. CLI commands not routed through this Service) use
// this to add a single log entry directly.
func (s *Service) Snapshot(ctx context.Context, tok *projectlock.WriteToken, operation string, st State) (git.Hash, error) {
	if tok == nil {
		return "", errs.Newf(errs.InvalidInput, "snapshot %s: write token required", operation)
	}
	tree, err := oplog.CreateTree(ctx, s.repo, oplog.State{
		HeadTree: st.HeadTree, WorktreeTree: st.WorktreeTree,
		Metadata: oplog.Metadata{Operation: operation},
	})
	if err != nil {
		return "", errs.New(errs.IO, err)
	}
	commit, err := s.oplog.Append(ctx, tree, operation)
	if err != nil {
		return "", errs.New(errs.IO, err)
	}
	return commit, nil
}

// RestoreSnapshot implements spec.md §4.I's restore_snapshot: it
// resolves target's stored change against headTree and records the
// restore itself as a new snapshot. The caller is responsible for
// applying the returned tree via CheckoutWorkspace or equivalent; this
// method does not touch the working tree or refs.
func (s *Service) RestoreSnapshot(ctx context.Context, tok *projectlock.WriteToken, target, headTree git.Hash) (oplog.Resolved, error) {
	if tok == nil {
		return oplog.Resolved{}, errs.Newf(errs.InvalidInput, "restore snapshot: write token required")
	}
	resolved, err := oplog.RestoreSnapshot(ctx, s.repo, s.oplog, target, headTree)
	if err != nil {
		return oplog.Resolved{}, errs.New(errs.IO, err)
	}
	if resolved.Conflicted {
		return resolved, errs.New(errs.ProjectConflict, fmt.Errorf("restore %s: conflicts in %v", target.Short(), resolved.ConflictPaths))
	}
	return resolved, nil
}

func (s *Service) headTree(ctx context.Context, commit git.Hash) (git.Hash, error) {
	c, err := s.repo.ReadCommit(ctx, commit.String())
	if err != nil {
		return "", errs.New(errs.IO, fmt.Errorf("read commit %s: %w", commit.Short(), err))
	}
	return c.Tree, nil
}

func (s *Service) mustTree(ctx context.Context, commit git.Hash) git.Hash {
	tree, err := s.headTree(ctx, commit)
	if err != nil {
		return git.EmptyTreeHash
	}
	return tree
}

func asDependentChangeError(err error, target **commit.DependentChangeError) bool {
	for err != nil {
		if dep, ok := err.(*commit.DependentChangeError); ok {
			*target = dep
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
