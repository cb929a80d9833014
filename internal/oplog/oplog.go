// Package oplog implements spec.md §4.I: content-addressed snapshots of
// the workspace and its metadata, written before and after every
// mutating core operation, so any of them can be undone.
package oplog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gitbutlerapp/but/internal/git"
)

const (
	headComponent                = "HEAD"
	indexComponent                = "index"
	worktreeComponent             = "worktree"
	indexConflictsComponent      = "index-conflicts"
	workspaceReferencesComponent = "workspace_references"
	headReferencesComponent      = "head_references"
	metadataComponent            = "metadata"
	metadataBlobName             = "metadata.json"
)

// Metadata is free-form bookkeeping recorded alongside a snapshot: what
// operation produced it, and an optional caller-defined body.
type Metadata struct {
	Operation string          `json:"operation"`
	Body      json.RawMessage `json:"body,omitempty"`
}

func (m Metadata) empty() bool {
	return m.Operation == "" && len(m.Body) == 0
}

// State is everything a snapshot captures about the workspace at a
// point in time. Every field is optional (its zero value omits that
// component from the resulting tree); a State with
// every field zero is the empty-change snapshot.
type State struct {
	// HeadTree is the pre-op target tree, so a clean no-change snapshot
	// is the empty tree.
	HeadTree git.Hash

	// IndexTree is the pre-op index, represented as a tree.
	IndexTree git.Hash

	// WorktreeTree is the pre-op working tree, represented as a tree.
	WorktreeTree git.Hash

	// IndexConflicts holds a conflict-entry tree if the index held
	// conflicts; zero otherwise.
	IndexConflicts git.Hash

	// WorkspaceReferences holds a tree of serialized stack records.
	WorkspaceReferences git.Hash

	// HeadReferences holds a tree of raw ref snapshots.
	HeadReferences git.Hash

	// Metadata records what operation this snapshot belongs to.
	Metadata Metadata
}

// Empty reports whether s carries no data at all, the case that always
// produces the well-known empty-tree OID.
func (s State) Empty() bool {
	return s.HeadTree.IsZero() && s.IndexTree.IsZero() && s.WorktreeTree.IsZero() &&
		s.IndexConflicts.IsZero() && s.WorkspaceReferences.IsZero() && s.HeadReferences.IsZero() &&
		s.Metadata.empty()
}

// CreateTree implements spec.md §4.I's create_tree: assembles state's
// components into a single snapshot tree. An empty state always yields
// the well-known empty-tree OID, never a tree with empty subtrees.
func CreateTree(ctx context.Context, repo *git.Repository, state State) (git.Hash, error) {
	if state.Empty() {
		return git.EmptyTreeHash, nil
	}

	var entries []git.TreeEntry
	add := func(name string, hash git.Hash) {
		if hash.IsZero() || hash == "" {
			return
		}
		entries = append(entries, git.TreeEntry{Mode: git.DirMode, Type: git.TreeType, Hash: hash, Name: name})
	}
	add(headComponent, state.HeadTree)
	add(indexComponent, state.IndexTree)
	add(worktreeComponent, state.WorktreeTree)
	add(indexConflictsComponent, state.IndexConflicts)
	add(workspaceReferencesComponent, state.WorkspaceReferences)
	add(headReferencesComponent, state.HeadReferences)

	if !state.Metadata.empty() {
		metaTree, err := writeMetadata(ctx, repo, state.Metadata)
		if err != nil {
			return "", fmt.Errorf("oplog: write metadata: %w", err)
		}
		add(metadataComponent, metaTree)
	}

	return repo.MakeTree(ctx, entrySeq(entries))
}

func writeMetadata(ctx context.Context, repo *git.Repository, m Metadata) (git.Hash, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	blob, err := repo.WriteObject(ctx, git.BlobType, &buf)
	if err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return repo.MakeTree(ctx, entrySeq([]git.TreeEntry{
		{Mode: git.RegularMode, Type: git.BlobType, Hash: blob, Name: metadataBlobName},
	}))
}

// readState is the inverse of CreateTree, used by ResolveTree to recover
// a snapshot's stored components.
func readState(ctx context.Context, repo *git.Repository, snapshotTree git.Hash) (State, error) {
	if snapshotTree == git.EmptyTreeHash || snapshotTree.IsZero() {
		return State{}, nil
	}

	entries, err := repo.ListTree(ctx, snapshotTree, git.ListTreeOptions{})
	if err != nil {
		return State{}, fmt.Errorf("oplog: list tree: %w", err)
	}

	var s State
	for ent, err := range entries {
		if err != nil {
			return State{}, fmt.Errorf("oplog: list tree: %w", err)
		}
		switch ent.Name {
		case headComponent:
			s.HeadTree = ent.Hash
		case indexComponent:
			s.IndexTree = ent.Hash
		case worktreeComponent:
			s.WorktreeTree = ent.Hash
		case indexConflictsComponent:
			s.IndexConflicts = ent.Hash
		case workspaceReferencesComponent:
			s.WorkspaceReferences = ent.Hash
		case headReferencesComponent:
			s.HeadReferences = ent.Hash
		case metadataComponent:
			meta, err := readMetadata(ctx, repo, ent.Hash)
			if err != nil {
				return State{}, err
			}
			s.Metadata = meta
		}
	}
	return s, nil
}

func readMetadata(ctx context.Context, repo *git.Repository, metaTree git.Hash) (Metadata, error) {
	hash, err := repo.HashAt(ctx, metaTree.String(), metadataBlobName)
	if err != nil {
		return Metadata{}, fmt.Errorf("oplog: read metadata blob: %w", err)
	}
	var buf bytes.Buffer
	if err := repo.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return Metadata{}, fmt.Errorf("oplog: read metadata blob: %w", err)
	}
	var m Metadata
	if err := json.NewDecoder(&buf).Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("oplog: decode metadata: %w", err)
	}
	return m, nil
}

// Resolved is the output of ResolveTree: the stored change cherry-picked
// onto the caller's current target tree.
type Resolved struct {
	Tree          git.Hash
	Conflicted    bool
	ConflictPaths []string

	// Index holds the stored index, similarly cherry-picked, if the
	// snapshot recorded one.
	Index           git.Hash
	IndexConflicted bool
}

// ResolveTree implements spec.md §4.I's resolve_tree: the inverse of
// CreateTree. It does not simply return the stored worktree tree, since
// the caller's headTree may have diverged from the snapshot's own stored
// HeadTree since it was taken; instead it cherry-picks the stored change
// (the difference between the snapshot's HeadTree and its WorktreeTree)
// onto headTree, exactly as a 3-way merge with the snapshot's own
// pre-change tree as base.
func ResolveTree(ctx context.Context, repo *git.Repository, snapshotTree, headTree git.Hash) (Resolved, error) {
	stored, err := readState(ctx, repo, snapshotTree)
	if err != nil {
		return Resolved{}, err
	}
	if stored.Empty() {
		return Resolved{Tree: headTree}, nil
	}

	worktree, err := repo.ThreeWayMergeTrees(ctx, stored.HeadTree, headTree, stored.WorktreeTree)
	if err != nil {
		return Resolved{}, fmt.Errorf("oplog: resolve worktree: %w", err)
	}
	resolved := Resolved{
		Tree:          worktree.Tree,
		Conflicted:    worktree.Conflicted,
		ConflictPaths: worktree.ConflictPaths,
	}

	if !stored.IndexTree.IsZero() {
		index, err := repo.ThreeWayMergeTrees(ctx, stored.HeadTree, headTree, stored.IndexTree)
		if err != nil {
			return Resolved{}, fmt.Errorf("oplog: resolve index: %w", err)
		}
		resolved.Index = index.Tree
		resolved.IndexConflicted = index.Conflicted
	}

	return resolved, nil
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
