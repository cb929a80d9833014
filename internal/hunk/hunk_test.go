package hunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRange_ZeroSelectionNeverIntersectsRealHunk(t *testing.T) {
	r := Range{Start: 5, Lines: 3}
	assert.False(t, r.Intersects(0, 0))
}

func TestRange_DeletionOnlyHunkIsPointInRange(t *testing.T) {
	r := Range{Start: 10, Lines: 0}
	assert.True(t, r.Intersects(8, 5))  // 10 in [8,13)
	assert.False(t, r.Intersects(11, 2)) // 10 not in [11,13)
}

func TestRange_WholeFileDeletionIntersectsEverything(t *testing.T) {
	r := Range{Deleted: true}
	assert.True(t, r.Intersects(0, 0))
	assert.True(t, r.Intersects(100, 1))
}

func TestRange_Contains(t *testing.T) {
	r := Range{Start: 10, Lines: 5} // [10,14]
	assert.True(t, r.Contains(11, 3))
	assert.False(t, r.Contains(10, 3)) // not strictly after start
	assert.False(t, r.Contains(11, 10))
}

func TestRange_CoveredBy(t *testing.T) {
	r := Range{Start: 10, Lines: 5}
	assert.True(t, r.CoveredBy(8, 10))
	assert.False(t, r.CoveredBy(11, 10))
	assert.False(t, r.CoveredBy(0, 0))
}

func TestRange_PrecedesFollows(t *testing.T) {
	r := Range{Start: 10, Lines: 5} // ends at 14
	assert.True(t, r.Precedes(15))
	assert.False(t, r.Precedes(14))
	assert.True(t, r.Follows(0, 5)) // query ends at 4
	assert.False(t, r.Follows(10, 5))
	assert.True(t, r.Follows(0, 0))
}

// Intersects is monotone under identity shifts: shifting both self and
// the query range by the same delta preserves the intersection result.
// A shift that turns the query into the (0,0) selection is not drawn,
// since (0,0) never intersects a non-deleted range whatever its origin.
func TestRange_IntersectsMonotoneUnderShift(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(0, 1000).Draw(t, "start")
		lines := rapid.IntRange(0, 50).Draw(t, "lines")
		s := rapid.IntRange(0, 1000).Draw(t, "s")
		n := rapid.IntRange(0, 50).Draw(t, "n")
		shift := rapid.IntRange(-100, 100).
			Filter(func(d int) bool { return n != 0 || s+d != 0 }).
			Draw(t, "shift")

		r := Range{Start: start, Lines: lines}
		before := r.Intersects(s, n)

		shifted := Range{Start: start + shift, Lines: lines}
		after := shifted.Intersects(s+shift, n)

		assert.Equal(t, before, after)
	})
}

func TestParse_SingleHunk(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/foo.txt b/foo.txt",
		"index 1234567..89abcde 100644",
		"--- a/foo.txt",
		"+++ b/foo.txt",
		"@@ -1,3 +1,4 @@",
		" line1",
		"+line2",
		" line3",
		" line4",
		"",
	}, "\n")

	hunks, err := Parse(strings.NewReader(diff))
	require.NoError(t, err)
	require.Len(t, hunks, 1)

	h := hunks[0]
	assert.Equal(t, "foo.txt", h.File)
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 4, h.NewLines)
	assert.Len(t, h.Lines, 4)
}

func TestParse_MultipleHunksMultipleFiles(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/a.txt b/a.txt",
		"--- a/a.txt",
		"+++ b/a.txt",
		"@@ -1,1 +1,2 @@",
		" a",
		"+b",
		"diff --git a/b.txt b/b.txt",
		"--- a/b.txt",
		"+++ b/b.txt",
		"@@ -5,2 +5,1 @@",
		"-x",
		" y",
		"",
	}, "\n")

	hunks, err := Parse(strings.NewReader(diff))
	require.NoError(t, err)
	require.Len(t, hunks, 2)
	assert.Equal(t, "a.txt", hunks[0].File)
	assert.Equal(t, "b.txt", hunks[1].File)
	assert.Equal(t, 5, hunks[1].OldStart)
}

func TestParse_NewFileNoOldRange(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/new.txt b/new.txt",
		"new file mode 100644",
		"--- /dev/null",
		"+++ b/new.txt",
		"@@ -0,0 +1,2 @@",
		"+hello",
		"+world",
		"",
	}, "\n")

	hunks, err := Parse(strings.NewReader(diff))
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, "new.txt", hunks[0].File)
	assert.Equal(t, 0, hunks[0].OldStart)
	assert.Equal(t, 0, hunks[0].OldLines)
}

func TestToAdditiveHunks_AnchorsWithinFullHunk(t *testing.T) {
	full := []Hunk{
		{File: "a.txt", NewStart: 10, NewLines: 10},
	}
	selection := []Hunk{
		{File: "a.txt", NewStart: 12, NewLines: 2},
	}

	applied, rejected := ToAdditiveHunks(selection, full, nil)
	assert.Empty(t, rejected)
	require.Len(t, applied, 1)
	assert.Equal(t, "a.txt", applied[0].File)
}

func TestToAdditiveHunks_RejectsUnanchored(t *testing.T) {
	full := []Hunk{
		{File: "a.txt", NewStart: 10, NewLines: 10},
	}
	selection := []Hunk{
		{File: "a.txt", NewStart: 100, NewLines: 2},
	}

	applied, rejected := ToAdditiveHunks(selection, full, nil)
	assert.Empty(t, applied)
	require.Len(t, rejected, 1)
}
