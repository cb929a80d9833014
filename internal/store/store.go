// Package store implements spec.md §4.B: the reference and metadata
// store mapping stack_id -> StackRecord plus the default target, backed
// by a single virtual_branches.toml file written atomically (temp +
// rename) per update. Serializing concurrent access across processes
// is internal/projectlock's job, not this package's; Store only
// guarantees that a single update is all-or-nothing on disk and that
// concurrent callers within one process don't interleave reads and
// writes of the same file.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/gitbutlerapp/but/internal/cmputil"
	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/osutil"
	"github.com/gitbutlerapp/but/internal/ownership"
)

// FileName is the on-disk file Store persists to, relative to the
// project's Git common directory.
const FileName = "virtual_branches.toml"

// ErrNotExist is returned when a requested stack or the default target
// has not been recorded.
var ErrNotExist = errors.New("store: not found")

// SegmentHead is a sub-branch head inside a stack, per spec.md §3's
// "ordered list of segment heads".
type SegmentHead struct {
	Name     string
	Head     git.Hash
	ChangeID string
}

// Stack is spec.md §3's virtual branch record.
type Stack struct {
	ID      ownership.StackID
	Name    string
	Head    git.Hash
	Tree    git.Hash
	Applied bool

	// Order is the stable render/ownership priority; lower sorts
	// earlier and wins assignment ties in internal/ownership.AssignHunk.
	Order int

	Ownership []ownership.OwnershipClaim

	// Upstream is the optional ref this stack tracks, empty if none.
	Upstream string

	Segments []SegmentHead
}

// DefaultTarget is spec.md §3's integration base against which stacks
// are composed.
type DefaultTarget struct {
	RemoteTrackingRef string
	SHA               git.Hash
	RemoteURL         string
}

// Store is a handle to one project's virtual_branches.toml.
type Store struct {
	mu   sync.Mutex
	path string
}

// OpenStore returns a Store backed by FileName inside dir (typically
// the repository's Git common directory). The file is created lazily,
// on the first write; OpenStore itself performs no I/O.
func OpenStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// ListStacks returns every recorded stack, ordered by Order ascending.
func (s *Store) ListStacks() ([]Stack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	stacks := make([]Stack, 0, len(doc.Stacks))
	for _, fs := range doc.Stacks {
		st, err := fromFileStack(fs)
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, st)
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].Order < stacks[j].Order })
	return stacks, nil
}

// GetStack returns the stack recorded under id, or ErrNotExist.
func (s *Store) GetStack(id ownership.StackID) (Stack, error) {
	stacks, err := s.ListStacks()
	if err != nil {
		return Stack{}, err
	}
	for _, st := range stacks {
		if st.ID == id {
			return st, nil
		}
	}
	return Stack{}, fmt.Errorf("%w: stack %s", ErrNotExist, id)
}

// UpsertStack creates or replaces the stack record matching st.ID. A
// zero ID mints a fresh one. The write is atomic: readers never observe
// a partially-written file.
func (s *Store) UpsertStack(st Stack) (Stack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmputil.Zero(st.ID) {
		st.ID = ownership.StackID(uuid.NewString())
	}

	doc, err := s.load()
	if err != nil {
		return Stack{}, err
	}
	fs := toFileStack(st)

	replaced := false
	for i, existing := range doc.Stacks {
		if existing.ID == string(st.ID) {
			doc.Stacks[i] = fs
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Stacks = append(doc.Stacks, fs)
	}

	if err := s.save(doc); err != nil {
		return Stack{}, err
	}
	return st, nil
}

// DeleteStack removes the stack recorded under id. It returns
// ErrNotExist if no such stack is recorded.
func (s *Store) DeleteStack(id ownership.StackID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	kept := doc.Stacks[:0]
	found := false
	for _, fs := range doc.Stacks {
		if fs.ID == string(id) {
			found = true
			continue
		}
		kept = append(kept, fs)
	}
	if !found {
		return fmt.Errorf("%w: stack %s", ErrNotExist, id)
	}
	doc.Stacks = kept
	return s.save(doc)
}

// Reorder assigns Order = index within ids to every stack named in ids;
// stacks not present in ids keep their current Order.
func (s *Store) Reorder(ids []ownership.StackID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[string(id)] = i
	}
	for i := range doc.Stacks {
		if pos, ok := position[doc.Stacks[i].ID]; ok {
			doc.Stacks[i].Order = pos
		}
	}
	return s.save(doc)
}

// DefaultTarget returns the recorded default target, or ErrNotExist if
// none has been set.
func (s *Store) DefaultTarget() (DefaultTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return DefaultTarget{}, err
	}
	if doc.DefaultTarget.RemoteTrackingRef == "" {
		return DefaultTarget{}, fmt.Errorf("%w: default target", ErrNotExist)
	}
	return DefaultTarget{
		RemoteTrackingRef: doc.DefaultTarget.RemoteTrackingRef,
		SHA:               git.Hash(doc.DefaultTarget.SHA),
		RemoteURL:         doc.DefaultTarget.RemoteURL,
	}, nil
}

// SetDefaultTarget records t as the project's default target.
func (s *Store) SetDefaultTarget(t DefaultTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.DefaultTarget = fileTarget{
		RemoteTrackingRef: t.RemoteTrackingRef,
		SHA:               t.SHA.String(),
		RemoteURL:         t.RemoteURL,
	}
	return s.save(doc)
}

func (s *Store) load() (fileDoc, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileDoc{}, nil
	}
	if err != nil {
		return fileDoc{}, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	var doc fileDoc
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fileDoc{}, fmt.Errorf("store: decode %s: %w", s.path, err)
	}
	return doc, nil
}

// save writes doc to a temp file in the same directory as s.path and
// renames it into place, so a reader sees either the old or the new
// file in full, never a partial write.
func (s *Store) save(doc fileDoc) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}

	tmp, err := osutil.TempFilePath(dir, "virtual_branches-*.toml")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	defer os.Remove(tmp) // no-op once the rename below succeeds

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: open temp file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		return fmt.Errorf("store: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// on-disk shape. Kept distinct from the public Stack/DefaultTarget
// types so the TOML layout (hashes and ownership claims as strings) is
// free to differ from the in-memory representation.

type fileDoc struct {
	DefaultTarget fileTarget  `toml:"default_target"`
	Stacks        []fileStack `toml:"stack,omitempty"`
}

type fileTarget struct {
	RemoteTrackingRef string `toml:"remote_tracking_ref"`
	SHA               string `toml:"sha"`
	RemoteURL         string `toml:"remote_url"`
}

type fileStack struct {
	ID        string        `toml:"id"`
	Name      string        `toml:"name"`
	Head      string        `toml:"head"`
	Tree      string        `toml:"tree"`
	Applied   bool          `toml:"applied"`
	Order     int           `toml:"order"`
	Ownership []string      `toml:"ownership,omitempty"`
	Upstream  string        `toml:"upstream,omitempty"`
	Segments  []fileSegment `toml:"segment,omitempty"`
}

type fileSegment struct {
	Name     string `toml:"name"`
	Head     string `toml:"head"`
	ChangeID string `toml:"change_id"`
}

func toFileStack(st Stack) fileStack {
	ownershipStrs := make([]string, len(st.Ownership))
	for i, c := range st.Ownership {
		ownershipStrs[i] = c.String()
	}
	segments := make([]fileSegment, len(st.Segments))
	for i, sg := range st.Segments {
		segments[i] = fileSegment{Name: sg.Name, Head: sg.Head.String(), ChangeID: sg.ChangeID}
	}
	return fileStack{
		ID:        string(st.ID),
		Name:      st.Name,
		Head:      st.Head.String(),
		Tree:      st.Tree.String(),
		Applied:   st.Applied,
		Order:     st.Order,
		Ownership: ownershipStrs,
		Upstream:  st.Upstream,
		Segments:  segments,
	}
}

func fromFileStack(fs fileStack) (Stack, error) {
	var claims []ownership.OwnershipClaim
	for _, raw := range fs.Ownership {
		parsed, err := ownership.Parse(raw)
		if err != nil {
			return Stack{}, fmt.Errorf("store: stack %s: %w", fs.ID, err)
		}
		claims = append(claims, parsed...)
	}
	segments := make([]SegmentHead, len(fs.Segments))
	for i, sg := range fs.Segments {
		segments[i] = SegmentHead{Name: sg.Name, Head: git.Hash(sg.Head), ChangeID: sg.ChangeID}
	}
	return Stack{
		ID:        ownership.StackID(fs.ID),
		Name:      fs.Name,
		Head:      git.Hash(fs.Head),
		Tree:      git.Hash(fs.Tree),
		Applied:   fs.Applied,
		Order:     fs.Order,
		Ownership: claims,
		Upstream:  fs.Upstream,
		Segments:  segments,
	}, nil
}
