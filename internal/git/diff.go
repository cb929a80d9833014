package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"iter"

	"github.com/gitbutlerapp/but/internal/scanutil"
)

// FileStatusCode specifies the status of a file in a diff.
type FileStatusCode string

// List of file status codes from
// https://git-scm.com/docs/git-diff-index#Documentation/git-diff-index.txt---diff-filterACDMRTUXB82308203.
const (
	FileUnchanged   FileStatusCode = ""
	FileAdded       FileStatusCode = "A"
	FileCopied      FileStatusCode = "C"
	FileDeleted     FileStatusCode = "D"
	FileModified    FileStatusCode = "M"
	FileRenamed     FileStatusCode = "R"
	FileTypeChanged FileStatusCode = "T"
	FileUnmerged    FileStatusCode = "U"
)

// FileStatus is a single file in a diff.
type FileStatus struct {
	// Status of the file.
	Status string

	// Path to the file relative to the tree root.
	Path string
}

// DiffTree compares two trees and returns an iterator over files that are
// different. The treeish1 and treeish2 arguments can be any valid tree-ish
// references.
//
// This is the only diff the object store adapter exposes: every component
// that needs a diff (the hunk model, the workspace composer) compares
// trees, never the working copy, so there is no DiffWork/DiffIndex here.
func (r *Repository) DiffTree(ctx context.Context, treeish1, treeish2 string) iter.Seq2[FileStatus, error] {
	return func(yield func(FileStatus, error) bool) {
		cmd := r.gitCmd(ctx, "diff-tree", "-r", "--name-status", "-z", treeish1, treeish2)
		out, err := cmd.Output(r.exec)
		if err != nil {
			yield(FileStatus{}, fmt.Errorf("git diff-tree: %w", err))
			return
		}

		scanner := bufio.NewScanner(bytes.NewReader(out))
		scanner.Split(scanutil.SplitNull)

		var status string
		var expectingPath bool
		for scanner.Scan() {
			field := scanner.Bytes()
			if len(field) == 0 {
				continue
			}

			if !expectingPath {
				status = string(field)
				expectingPath = true
				continue
			}

			if !yield(FileStatus{Status: status, Path: string(field)}, nil) {
				return
			}
			expectingPath = false
		}
		if err := scanner.Err(); err != nil {
			yield(FileStatus{}, fmt.Errorf("git diff-tree: scan: %w", err))
		}
	}
}
