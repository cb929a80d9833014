package oplog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gitbutlerapp/but/internal/git"
)

// RestoreOperation is the Metadata.Operation recorded for a snapshot
// written by RestoreSnapshot itself, so a restore shows up in the log
// like any other mutating operation and can itself be undone.
const RestoreOperation = "restore"

// restoreBody is RestoreSnapshot's Metadata.Body: which snapshot it
// restored.
type restoreBody struct {
	Restored string `json:"restored"`
}

// RestoreSnapshot implements spec.md §4.I's restore_snapshot: it
// resolves the change stored at target against the caller's current
// headTree, exactly as ResolveTree does, then records the restore
// itself as a new snapshot in l so it forms part of the linear log and
// can be undone like any other operation.
//
// It does not touch the working tree or refs directly: per spec.md
// §4.H/§4.I, applying a resolved tree to the checkout is the workspace
// composer's job (internal/workspace.Checkout), not the oplog's; the
// caller is expected to pass Resolved.Tree through that path.
func RestoreSnapshot(ctx context.Context, repo *git.Repository, l *Log, target, headTree git.Hash) (Resolved, error) {
	commit, err := repo.ReadCommit(ctx, target.String())
	if err != nil {
		return Resolved{}, fmt.Errorf("oplog: read snapshot %s: %w", target.Short(), err)
	}

	resolved, err := ResolveTree(ctx, repo, commit.Tree, headTree)
	if err != nil {
		return Resolved{}, fmt.Errorf("oplog: restore %s: %w", target.Short(), err)
	}

	body, err := json.Marshal(restoreBody{Restored: target.String()})
	if err != nil {
		return Resolved{}, fmt.Errorf("oplog: encode restore body: %w", err)
	}
	logTree, err := CreateTree(ctx, repo, State{
		HeadTree:     headTree,
		WorktreeTree: resolved.Tree,
		Metadata:     Metadata{Operation: RestoreOperation, Body: body},
	})
	if err != nil {
		return Resolved{}, fmt.Errorf("oplog: build restore snapshot: %w", err)
	}
	if _, err := l.Append(ctx, logTree, fmt.Sprintf("restore %s", target.Short())); err != nil {
		return Resolved{}, fmt.Errorf("oplog: record restore: %w", err)
	}

	return resolved, nil
}
