package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gitbutlerapp/but/internal/engine/errs"
	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/hunk"
	"github.com/gitbutlerapp/but/internal/ownership"
)

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := errs.New(errs.IO, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "io")
	assert.Contains(t, err.Error(), "boom")
}

func TestCommitConflictError_CarriesCommitID(t *testing.T) {
	err := errs.CommitConflictError("aaaa000000000000000000000000000000000a", errors.New("merge conflict"))
	assert.Equal(t, errs.CommitConflict, err.Kind)
	assert.Equal(t, git.Hash("aaaa000000000000000000000000000000000a"), err.CommitID)
}

func TestOwnershipRejectError_CarriesRejection(t *testing.T) {
	rejection := ownership.AssignmentRejection{
		Path:     "a.txt",
		Hunk:     hunk.Hunk{NewStart: 1, NewLines: 2},
		LockedBy: "stack-1",
		Reason:   "locked by a committed hunk",
	}
	err := errs.OwnershipRejectError(rejection)
	assert.Equal(t, errs.OwnershipReject, err.Kind)
	require := assert.New(t)
	require.NotNil(err.Rejection)
	require.Equal(ownership.StackID("stack-1"), err.Rejection.LockedBy)
}

func TestDependentChangeError_CarriesBlocking(t *testing.T) {
	err := errs.DependentChangeError([]string{"c1", "<worktree>"}, errors.New("dependent change"))
	assert.Equal(t, errs.DependentChange, err.Kind)
	assert.Equal(t, []string{"c1", "<worktree>"}, err.Blocking)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "not found", errs.NotFound.String())
	assert.Equal(t, "dependent change", errs.DependentChange.String())
}
