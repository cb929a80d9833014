package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/ownership"
	"github.com/gitbutlerapp/but/internal/store"
)

func TestStore(t *testing.T) {
	s := store.OpenStore(t.TempDir())

	t.Run("empty", func(t *testing.T) {
		stacks, err := s.ListStacks()
		require.NoError(t, err)
		assert.Empty(t, stacks)

		_, err = s.GetStack("missing")
		assert.ErrorIs(t, err, store.ErrNotExist)

		_, err = s.DefaultTarget()
		assert.ErrorIs(t, err, store.ErrNotExist)
	})

	var id ownership.StackID
	t.Run("create", func(t *testing.T) {
		st, err := s.UpsertStack(store.Stack{
			Name:    "feature-a",
			Head:    "aaaa000000000000000000000000000000000a",
			Tree:    "bbbb000000000000000000000000000000000b",
			Applied: true,
			Order:   0,
			Ownership: []ownership.OwnershipClaim{
				{Path: "a.txt"},
				{Path: "b.txt", Ranges: []ownership.ClaimRange{{NewStart: 10, NewLines: 5}}},
			},
		})
		require.NoError(t, err)
		require.NotEmpty(t, st.ID, "UpsertStack should mint an ID for a new stack")
		id = st.ID

		got, err := s.GetStack(id)
		require.NoError(t, err)
		assert.Equal(t, "feature-a", got.Name)
		assert.True(t, got.Applied)
		require.Len(t, got.Ownership, 2)
		assert.Equal(t, "a.txt", got.Ownership[0].String())
		assert.Equal(t, "b.txt:10-15", got.Ownership[1].String())
	})

	t.Run("overwrite preserves id", func(t *testing.T) {
		_, err := s.UpsertStack(store.Stack{
			ID:      id,
			Name:    "feature-a-renamed",
			Head:    "cccc000000000000000000000000000000000c",
			Tree:    "bbbb000000000000000000000000000000000b",
			Applied: true,
			Order:   0,
		})
		require.NoError(t, err)

		stacks, err := s.ListStacks()
		require.NoError(t, err)
		require.Len(t, stacks, 1, "overwrite must not duplicate the record")
		assert.Equal(t, "feature-a-renamed", stacks[0].Name)
		assert.Equal(t, git.Hash("cccc000000000000000000000000000000000c"), stacks[0].Head)
	})

	var secondID ownership.StackID
	t.Run("reorder", func(t *testing.T) {
		st, err := s.UpsertStack(store.Stack{Name: "feature-b", Order: 1})
		require.NoError(t, err)
		secondID = st.ID

		require.NoError(t, s.Reorder([]ownership.StackID{secondID, id}))

		stacks, err := s.ListStacks()
		require.NoError(t, err)
		require.Len(t, stacks, 2)
		assert.Equal(t, secondID, stacks[0].ID, "reorder should move feature-b first")
		assert.Equal(t, id, stacks[1].ID)
	})

	t.Run("default target", func(t *testing.T) {
		require.NoError(t, s.SetDefaultTarget(store.DefaultTarget{
			RemoteTrackingRef: "refs/remotes/origin/main",
			SHA:               "dddd000000000000000000000000000000000d",
			RemoteURL:         "git@example.com:org/repo.git",
		}))

		target, err := s.DefaultTarget()
		require.NoError(t, err)
		assert.Equal(t, "refs/remotes/origin/main", target.RemoteTrackingRef)
		assert.Equal(t, git.Hash("dddd000000000000000000000000000000000d"), target.SHA)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteStack(secondID))

		stacks, err := s.ListStacks()
		require.NoError(t, err)
		require.Len(t, stacks, 1)
		assert.Equal(t, id, stacks[0].ID)

		err = s.DeleteStack(secondID)
		assert.ErrorIs(t, err, store.ErrNotExist)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := store.OpenStore(dir)

	_, err := s.UpsertStack(store.Stack{Name: "persisted", Order: 0})
	require.NoError(t, err)

	reopened := store.OpenStore(dir)
	stacks, err := reopened.ListStacks()
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Equal(t, "persisted", stacks[0].Name)

	_, err = os.Stat(filepath.Join(dir, store.FileName))
	require.NoError(t, err)
}
