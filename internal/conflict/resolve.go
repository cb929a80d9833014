package conflict

import (
	"context"
	"fmt"

	"github.com/gitbutlerapp/but/internal/git"
)

// IsConflicted reports whether tree has the reserved conflict-encoding
// layout at its root.
func IsConflicted(ctx context.Context, repo *git.Repository, tree git.Hash) (bool, error) {
	entries, err := repo.ListTree(ctx, tree, git.ListTreeOptions{})
	if err != nil {
		return false, fmt.Errorf("conflict: list tree: %w", err)
	}
	for ent, err := range entries {
		if err != nil {
			return false, fmt.Errorf("conflict: list tree: %w", err)
		}
		if ent.Name == AutoResolutionDir {
			return true, nil
		}
	}
	return false, nil
}

// EffectiveTree returns the tree that should stand in for a possibly
// conflicted tree when it is used as an input to a further merge: every
// non-reserved root entry, plus the contents of .auto-resolution promoted
// to the root. If tree is not conflicted, EffectiveTree returns it
// unchanged.
func EffectiveTree(ctx context.Context, repo *git.Repository, tree git.Hash) (git.Hash, error) {
	entries, err := repo.ListTree(ctx, tree, git.ListTreeOptions{})
	if err != nil {
		return git.ZeroHash, fmt.Errorf("conflict: list tree: %w", err)
	}

	var kept []git.TreeEntry
	var autoResolution git.Hash
	for ent, err := range entries {
		if err != nil {
			return git.ZeroHash, fmt.Errorf("conflict: list tree: %w", err)
		}
		switch ent.Name {
		case AutoResolutionDir:
			autoResolution = ent.Hash
		case ConflictBaseDir, ConflictOursDir, ConflictTheirsDir:
			// dropped
		default:
			kept = append(kept, ent)
		}
	}

	if autoResolution.IsZero() || autoResolution == "" {
		// Not a conflicted tree; nothing to promote.
		return tree, nil
	}

	promoted, err := repo.ListTree(ctx, autoResolution, git.ListTreeOptions{})
	if err != nil {
		return git.ZeroHash, fmt.Errorf("conflict: list auto-resolution tree: %w", err)
	}
	for ent, err := range promoted {
		if err != nil {
			return git.ZeroHash, fmt.Errorf("conflict: list auto-resolution tree: %w", err)
		}
		kept = append(kept, ent)
	}

	return repo.MakeTree(ctx, entrySeq(kept))
}

// Decoded holds the reserved subtrees of a conflicted commit's tree,
// recursively flattened to path -> blob hash.
type Decoded struct {
	Base, Ours, Theirs, AutoResolution map[string]git.Hash
}

// Decode reads back the four reserved subtrees of a conflicted tree. It
// returns a zero Decoded (all nil maps) if tree is not conflicted.
func Decode(ctx context.Context, repo *git.Repository, tree git.Hash) (Decoded, error) {
	root, err := repo.ListTree(ctx, tree, git.ListTreeOptions{})
	if err != nil {
		return Decoded{}, fmt.Errorf("conflict: list tree: %w", err)
	}

	var d Decoded
	var autoResolution, base, ours, theirs git.Hash
	var found bool
	for ent, err := range root {
		if err != nil {
			return Decoded{}, fmt.Errorf("conflict: list tree: %w", err)
		}
		switch ent.Name {
		case AutoResolutionDir:
			autoResolution, found = ent.Hash, true
		case ConflictBaseDir:
			base = ent.Hash
		case ConflictOursDir:
			ours = ent.Hash
		case ConflictTheirsDir:
			theirs = ent.Hash
		}
	}
	if !found {
		return Decoded{}, nil
	}

	d.AutoResolution, err = flatten(ctx, repo, autoResolution)
	if err != nil {
		return Decoded{}, err
	}
	d.Base, err = flatten(ctx, repo, base)
	if err != nil {
		return Decoded{}, err
	}
	d.Ours, err = flatten(ctx, repo, ours)
	if err != nil {
		return Decoded{}, err
	}
	d.Theirs, err = flatten(ctx, repo, theirs)
	if err != nil {
		return Decoded{}, err
	}
	return d, nil
}

func flatten(ctx context.Context, repo *git.Repository, tree git.Hash) (map[string]git.Hash, error) {
	if tree == "" || tree.IsZero() {
		return nil, nil
	}
	entries, err := repo.ListTree(ctx, tree, git.ListTreeOptions{Recurse: true})
	if err != nil {
		return nil, fmt.Errorf("conflict: flatten %s: %w", tree.Short(), err)
	}
	out := make(map[string]git.Hash)
	for ent, err := range entries {
		if err != nil {
			return nil, fmt.Errorf("conflict: flatten %s: %w", tree.Short(), err)
		}
		if ent.Type == git.BlobType {
			out[ent.Name] = ent.Hash
		}
	}
	return out, nil
}

func entrySeq(s []git.TreeEntry) func(yield func(git.TreeEntry) bool) {
	return func(yield func(git.TreeEntry) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}
