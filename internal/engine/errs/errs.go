// Package errs defines the machine-readable error kinds spec.md §7
// requires every core operation to surface, alongside a free-form
// message.
package errs

import (
	"fmt"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/ownership"
)

// Kind is a machine-readable error category.
type Kind int

const (
	// NotFound means a requested stack, commit, ref, or snapshot does
	// not exist.
	NotFound Kind = iota

	// ProjectConflict means a worktree change could not be reapplied
	// cleanly during workspace recovery or checkout.
	ProjectConflict

	// CommitConflict means an operation produced a conflicted commit
	// as a first-class result, not a failure.
	CommitConflict

	// Locked means the project's inter-process or worktree lock could
	// not be acquired.
	Locked

	// OwnershipReject means a hunk could not be assigned to the
	// requested stack because it is locked by a prior committed hunk.
	OwnershipReject

	// DependentChange means a commit-engine operation was rejected
	// because the range being changed is tied to other changes: a later
	// commit that builds on it, an earlier commit it builds on, or an
	// uncommitted worktree change.
	DependentChange

	// Corrupt means an on-disk object or record violates the format
	// it is expected to have.
	Corrupt

	// IO means the underlying object store or file system failed.
	IO

	// InvalidInput means the caller's request was malformed
	// independent of repository state.
	InvalidInput
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case ProjectConflict:
		return "project conflict"
	case CommitConflict:
		return "commit conflict"
	case Locked:
		return "locked"
	case OwnershipReject:
		return "ownership rejected"
	case DependentChange:
		return "dependent change"
	case Corrupt:
		return "corrupt"
	case IO:
		return "io"
	case InvalidInput:
		return "invalid input"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a machine-readable Kind and, for the kinds
// that carry one, structured payload: CommitConflict carries the
// conflicted commit's hash, OwnershipReject carries the offending
// claim, DependentChange carries the blocking commits.
type Error struct {
	Kind Kind
	Err  error

	// CommitID is set when Kind == CommitConflict.
	CommitID git.Hash

	// Rejection is set when Kind == OwnershipReject.
	Rejection *ownership.AssignmentRejection

	// Blocking is set when Kind == DependentChange: the commits whose
	// ranges block the requested change.
	Blocking []string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under kind with no structured payload.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf wraps a formatted message under kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// CommitConflictError reports a conflicted commit produced by an
// operation that otherwise succeeded.
func CommitConflictError(commit git.Hash, err error) *Error {
	return &Error{Kind: CommitConflict, Err: err, CommitID: commit}
}

// OwnershipRejectError reports a hunk that could not be assigned
// because rejection's LockedBy stack already owns the committed range.
func OwnershipRejectError(rejection ownership.AssignmentRejection) *Error {
	return &Error{
		Kind:      OwnershipReject,
		Err:       fmt.Errorf("%s: %s", rejection.Path, rejection.Reason),
		Rejection: &rejection,
	}
}

// DependentChangeError reports a commit-engine operation rejected
// because blocking commits depend on the affected range.
func DependentChangeError(blocking []string, err error) *Error {
	return &Error{Kind: DependentChange, Err: err, Blocking: blocking}
}
