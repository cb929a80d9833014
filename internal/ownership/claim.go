// Package ownership implements the ownership and hunk-dependency engine:
// tracking which stack a worktree hunk belongs to, and which committed
// hunks a prior stack has already claimed.
package ownership

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gitbutlerapp/but/internal/hunk"
)

// StackID identifies a virtual branch. It is a UUID string, minted by
// internal/store on stack creation.
type StackID string

// ClaimRange is one contiguous range of an OwnershipClaim, given in the
// coordinates of a unified diff hunk header. ContentHash is optional and,
// when present, is used to disambiguate a claim from a hunk that merely
// occupies the same line range but has different content.
type ClaimRange struct {
	OldStart, OldLines int
	NewStart, NewLines int
	ContentHash        string
}

// OwnershipClaim asserts that certain hunks of a file belong to a stack's
// uncommitted changes. An empty Ranges means the whole file.
type OwnershipClaim struct {
	Path   string
	Ranges []ClaimRange
}

// IsFull reports whether the claim covers the entire file.
func (c OwnershipClaim) IsFull() bool {
	return len(c.Ranges) == 0
}

// Range returns the claim's range as a hunk.Range in new-file coordinates,
// for use against the predicate table. A whole-file claim has no
// ClaimRange at all; callers check OwnershipClaim.IsFull first.
func (c ClaimRange) Range() hunk.Range {
	return hunk.Range{Start: c.NewStart, Lines: c.NewLines}
}

// String renders the claim in the wire format: "path:lo-hi[,lo-hi…]", or
// just "path" for a whole-file claim.
func (c OwnershipClaim) String() string {
	if c.IsFull() {
		return c.Path
	}
	parts := make([]string, len(c.Ranges))
	for i, r := range c.Ranges {
		parts[i] = r.String()
	}
	return c.Path + ":" + strings.Join(parts, ",")
}

func (r ClaimRange) String() string {
	lo, hi := r.NewStart, r.NewStart+r.NewLines
	return strconv.Itoa(lo) + "-" + strconv.Itoa(hi)
}

// Parse parses the ownership wire format: "path:lo-hi[,lo-hi…][|path:…]".
// A path with no ":" is a whole-file claim. Parsing is lenient: fields
// after the range pair on a segment are ignored. An explicit range segment
// that parses to no ranges at all is rejected, since an empty-ranges claim
// must take the whole-file form.
func Parse(s string) ([]OwnershipClaim, error) {
	if s == "" {
		return nil, nil
	}
	segments := strings.Split(s, "|")
	claims := make([]OwnershipClaim, 0, len(segments))
	for _, seg := range segments {
		c, err := parseClaim(seg)
		if err != nil {
			return nil, fmt.Errorf("ownership: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, nil
}

func parseClaim(seg string) (OwnershipClaim, error) {
	path, rangesPart, hasRanges := strings.Cut(seg, ":")
	if path == "" {
		return OwnershipClaim{}, fmt.Errorf("empty path in claim %q", seg)
	}
	if !hasRanges {
		return OwnershipClaim{Path: path}, nil
	}

	var ranges []ClaimRange
	for _, field := range strings.Split(rangesPart, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		r, err := parseClaimRange(field)
		if err != nil {
			continue // lenient: ignore unparsable trailing fields
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return OwnershipClaim{}, fmt.Errorf("claim %q has no ranges", seg)
	}
	return OwnershipClaim{Path: path, Ranges: ranges}, nil
}

func parseClaimRange(field string) (ClaimRange, error) {
	lo, hi, ok := strings.Cut(field, "-")
	if !ok {
		return ClaimRange{}, fmt.Errorf("range %q missing '-'", field)
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return ClaimRange{}, fmt.Errorf("range %q: %w", field, err)
	}
	end, err := strconv.Atoi(hi)
	if err != nil {
		return ClaimRange{}, fmt.Errorf("range %q: %w", field, err)
	}
	if end < start {
		return ClaimRange{}, fmt.Errorf("range %q: end before start", field)
	}
	return ClaimRange{NewStart: start, NewLines: end - start}, nil
}

// Plus returns a copy of c with another's ranges folded in. Whole-file
// ownership absorbs partial ownership in either direction.
func (c OwnershipClaim) Plus(another OwnershipClaim) OwnershipClaim {
	if c.Path != another.Path {
		return c
	}
	if c.IsFull() {
		return c
	}
	if another.IsFull() {
		return another
	}

	kept := make([]ClaimRange, 0, len(c.Ranges))
	for _, r := range c.Ranges {
		if !containsRange(another.Ranges, r) {
			kept = append(kept, r)
		}
	}
	merged := make([]ClaimRange, 0, len(another.Ranges)+len(kept))
	merged = append(merged, another.Ranges...)
	merged = append(merged, kept...)
	return OwnershipClaim{Path: another.Path, Ranges: merged}
}

// Minus removes another's ranges from c, returning (taken, remaining). If
// c is fully removed, remaining is nil. If nothing overlapped, taken is
// nil.
func (c OwnershipClaim) Minus(another OwnershipClaim) (taken, remaining *OwnershipClaim) {
	if c.Path != another.Path {
		return nil, &c
	}
	if another.IsFull() {
		return &c, nil
	}
	if c.IsFull() {
		// Whole-file ownership minus a partial claim: we don't know
		// the full hunk set, so ownership is left untouched.
		return nil, &c
	}

	var left, taken2 []ClaimRange
	for _, r := range c.Ranges {
		if containsRange(another.Ranges, r) {
			taken2 = append(taken2, r)
		} else {
			left = append(left, r)
		}
	}

	var t, rem *OwnershipClaim
	if len(taken2) > 0 {
		t = &OwnershipClaim{Path: c.Path, Ranges: taken2}
	}
	if len(left) > 0 {
		rem = &OwnershipClaim{Path: c.Path, Ranges: left}
	}
	return t, rem
}

func containsRange(ranges []ClaimRange, r ClaimRange) bool {
	for _, x := range ranges {
		if x == r {
			return true
		}
	}
	return false
}
