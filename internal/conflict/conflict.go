// Package conflict implements the encoding of conflicted commits as trees
// with reserved base/side/auto-resolution subtrees.
package conflict

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gitbutlerapp/but/internal/git"
)

// The four reserved top-level directories of a conflicted commit's tree.
const (
	AutoResolutionDir = ".auto-resolution"
	ConflictBaseDir   = ".conflict-base-0"
	ConflictOursDir   = ".conflict-side-0"
	ConflictTheirsDir = ".conflict-side-1"
)

var reservedDirs = []string{AutoResolutionDir, ConflictBaseDir, ConflictOursDir, ConflictTheirsDir}

// IsReservedPath reports whether path falls under one of the reserved
// conflict-encoding directories, and so must never be treated as an
// ordinary user path.
func IsReservedPath(path string) bool {
	for _, dir := range reservedDirs {
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}

// Side names which side of a conflict was chosen for a path's
// auto-resolution.
type Side int

const (
	SideOurs Side = iota
	SideTheirs
)

func (s Side) String() string {
	if s == SideTheirs {
		return "theirs"
	}
	return "ours"
}

// PathResolution records, for one conflicting path, which side was chosen
// for its entry in .auto-resolution.
type PathResolution struct {
	Path   string
	Chosen Side
}

// Header is the payload of a conflicted commit's "conflicted" trailer: the
// set of paths that conflicted and which side each resolved to.
type Header struct {
	Paths []PathResolution
}

// HeaderKey is the lowercased trailer key internal/git.Commit.Headers
// stores conflict metadata under.
const HeaderKey = "conflicted"

// String renders the header payload as "path=side,path=side,…".
func (h Header) String() string {
	parts := make([]string, len(h.Paths))
	for i, p := range h.Paths {
		parts[i] = p.Path + "=" + p.Chosen.String()
	}
	return strings.Join(parts, ",")
}

// ParseHeader parses a "conflicted" trailer payload as produced by
// [Header.String]. Unrecognized side names default to ours.
func ParseHeader(payload string) Header {
	var h Header
	if payload == "" {
		return h
	}
	for _, field := range strings.Split(payload, ",") {
		path, side, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		chosen := SideOurs
		if side == "theirs" {
			chosen = SideTheirs
		}
		h.Paths = append(h.Paths, PathResolution{Path: path, Chosen: chosen})
	}
	return h
}

// Encode builds a conflicted commit's tree from a conflicted
// [git.MergeResult]: every non-conflicting path from result.Tree is kept
// at its ordinary location, and every conflicting path is moved into the
// four reserved subtrees, with prefer naming which side's content becomes
// that path's entry under .auto-resolution.
//
// Encode requires result.Conflicted to be true.
func Encode(ctx context.Context, repo *git.Repository, result git.MergeResult, prefer Side) (git.Hash, Header, error) {
	if !result.Conflicted {
		return git.ZeroHash, Header{}, fmt.Errorf("conflict.Encode: merge result is not conflicted")
	}

	conflictSet := make(map[string]struct{}, len(result.ConflictPaths))
	for _, p := range result.ConflictPaths {
		conflictSet[p] = struct{}{}
	}

	entries, err := repo.ListTree(ctx, result.Tree, git.ListTreeOptions{Recurse: true})
	if err != nil {
		return git.ZeroHash, Header{}, fmt.Errorf("conflict: list merged tree: %w", err)
	}

	var blobs []git.BlobInfo
	for ent, err := range entries {
		if err != nil {
			return git.ZeroHash, Header{}, fmt.Errorf("conflict: list merged tree: %w", err)
		}
		if ent.Type != git.BlobType {
			continue
		}
		if _, conflicted := conflictSet[ent.Name]; conflicted {
			continue
		}
		blobs = append(blobs, git.BlobInfo{Mode: ent.Mode, Hash: ent.Hash, Path: ent.Name})
	}

	paths := slices.Clone(result.ConflictPaths)
	slices.Sort(paths)

	header := Header{}
	for _, p := range paths {
		if base, ok := result.Base[p]; ok {
			blobs = append(blobs, git.BlobInfo{Mode: base.Mode, Hash: base.Hash, Path: ConflictBaseDir + "/" + p})
		}
		if ours, ok := result.Ours[p]; ok {
			blobs = append(blobs, git.BlobInfo{Mode: ours.Mode, Hash: ours.Hash, Path: ConflictOursDir + "/" + p})
		}
		if theirs, ok := result.Theirs[p]; ok {
			blobs = append(blobs, git.BlobInfo{Mode: theirs.Mode, Hash: theirs.Hash, Path: ConflictTheirsDir + "/" + p})
		}

		chosen, chosenBlob, ok := choose(result, p, prefer)
		if ok {
			blobs = append(blobs, git.BlobInfo{Mode: chosenBlob.Mode, Hash: chosenBlob.Hash, Path: AutoResolutionDir + "/" + p})
		}
		header.Paths = append(header.Paths, PathResolution{Path: p, Chosen: chosen})
	}

	tree, err := git.MakeTreeRecursive(ctx, repo, sliceSeq(blobs))
	if err != nil {
		return git.ZeroHash, Header{}, fmt.Errorf("conflict: build tree: %w", err)
	}
	return tree, header, nil
}

// choose picks the preferred side's blob for path, falling back to the
// other side if the preferred side deleted the path.
func choose(result git.MergeResult, path string, prefer Side) (Side, git.ConflictBlob, bool) {
	primary, secondary := result.Ours, result.Theirs
	primarySide, secondarySide := SideOurs, SideTheirs
	if prefer == SideTheirs {
		primary, secondary = secondary, primary
		primarySide, secondarySide = secondarySide, primarySide
	}
	if b, ok := primary[path]; ok {
		return primarySide, b, true
	}
	if b, ok := secondary[path]; ok {
		return secondarySide, b, true
	}
	return prefer, git.ConflictBlob{}, false
}

func sliceSeq(s []git.BlobInfo) func(yield func(git.BlobInfo) bool) {
	return func(yield func(git.BlobInfo) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}
