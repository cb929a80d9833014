// Package git provides access to the Git CLI with a Git library-like
// interface, acting as the object store adapter for the engine: it reads
// and writes blobs, trees, and commits, and exposes merge-base and
// 3-way tree merge as pure functions of their inputs.
package git

import (
	"context"
	"fmt"
	"strings"

	"go.abhg.dev/log/silog"
)

// InitOptions configures the behavior of [Init].
type InitOptions struct {
	// Log specifies the logger to use for messages.
	// If nil, logging is disabled.
	Log *silog.Logger

	// Branch is the name of the initial branch to create.
	// Defaults to "main".
	Branch string

	exec execer
}

// Init initializes a new Git repository at the given directory.
// If dir is empty, the current working directory is used.
func Init(ctx context.Context, dir string, opts InitOptions) (*Repository, error) {
	if opts.exec == nil {
		opts.exec = _realExec
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}

	initCmd := newGitCmd(ctx, opts.Log, "init", "--initial-branch="+opts.Branch).Dir(dir)
	if err := initCmd.Run(opts.exec); err != nil {
		return nil, fmt.Errorf("git init: %w", err)
	}

	return Open(ctx, dir, OpenOptions{Log: opts.Log, exec: opts.exec})
}

// OpenOptions configures the behavior of [Open].
type OpenOptions struct {
	// Log specifies the logger to use for messages.
	// If nil, logging is disabled.
	Log *silog.Logger

	exec execer
}

// Open opens the repository at the given directory.
// If dir is empty, the current working directory is used.
func Open(ctx context.Context, dir string, opts OpenOptions) (*Repository, error) {
	if opts.exec == nil {
		opts.exec = _realExec
	}
	if opts.Log == nil {
		opts.Log = silog.Nop()
	}

	out, err := newGitCmd(ctx, opts.Log,
		"rev-parse", "--show-toplevel", "--absolute-git-dir",
	).Dir(dir).OutputString(opts.exec)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	root, gitDir, ok := strings.Cut(out, "\n")
	if !ok {
		return nil, fmt.Errorf("unexpected output from git rev-parse: %q", out)
	}

	return newRepository(root, gitDir, opts.Log, opts.exec), nil
}

// Repository is a handle to a Git repository, and the concrete
// implementation of the engine's Object Store adapter.
//
// Per the adapter contract, every read or write operation is a
// deterministic function of its inputs: two invocations with the same
// arguments against the same repository state return the same OIDs.
type Repository struct {
	root   string
	gitDir string

	log  *silog.Logger
	exec execer
}

func newRepository(root, gitDir string, log *silog.Logger, exec execer) *Repository {
	return &Repository{root: root, gitDir: gitDir, log: log, exec: exec}
}

// RootDir returns the absolute path to the working tree root.
func (r *Repository) RootDir() string { return r.root }

// GitDir returns the absolute path to the repository's .git directory.
func (r *Repository) GitDir() string { return r.gitDir }

// gitCmd returns a gitCmd that runs with the repository's root
// as the working directory.
func (r *Repository) gitCmd(ctx context.Context, args ...string) *gitCmd {
	return newGitCmd(ctx, r.log, args...).Dir(r.root)
}
