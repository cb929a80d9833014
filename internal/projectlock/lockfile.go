// Package projectlock implements spec.md §5's concurrency model: a
// process-wide inter-process lock file guarding a project's metadata
// directory, and an in-process, writer-preferring, fair readers-writer
// lock guarding worktree access, exposed only through the typed
// permission tokens that every mutating internal/engine.Service method
// requires.
package projectlock

import (
	"fmt"
	"path/filepath"

	"github.com/nightlyone/lockfile"
)

// FileName is the lock file's name inside a project's metadata
// directory, per spec.md §6's "project.lock".
const FileName = "project.lock"

// ProcessLock is the process-wide inter-process lock: only one engine
// instance per project may hold it at a time.
type ProcessLock struct {
	lf lockfile.Lockfile
}

// OpenProcessLock returns the process lock for the project rooted at
// metadataDir. It does not acquire the lock; call TryLock for that.
func OpenProcessLock(metadataDir string) (*ProcessLock, error) {
	abs, err := filepath.Abs(metadataDir)
	if err != nil {
		return nil, fmt.Errorf("projectlock: resolve %s: %w", metadataDir, err)
	}
	lf, err := lockfile.New(filepath.Join(abs, FileName))
	if err != nil {
		return nil, fmt.Errorf("projectlock: open %s: %w", metadataDir, err)
	}
	return &ProcessLock{lf: lf}, nil
}

// ErrLocked is returned by TryLock when another process already holds
// the lock.
var ErrLocked = lockfile.ErrBusy

// TryLock acquires the lock, failing immediately with ErrLocked if
// another process (or, per the underlying library, a dead process that
// left a stale lock file pointing at a live PID collision) already
// holds it. The lock is held until Unlock is called or the process
// dies; a lock file left behind by a dead process is treated as stale
// and replaced by the next TryLock.
func (p *ProcessLock) TryLock() error {
	if err := p.lf.TryLock(); err != nil {
		return fmt.Errorf("projectlock: acquire: %w", err)
	}
	return nil
}

// Unlock releases the lock.
func (p *ProcessLock) Unlock() error {
	if err := p.lf.Unlock(); err != nil {
		return fmt.Errorf("projectlock: release: %w", err)
	}
	return nil
}
