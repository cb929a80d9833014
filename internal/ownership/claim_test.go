package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WholeFile(t *testing.T) {
	claims, err := Parse("foo.txt")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "foo.txt", claims[0].Path)
	assert.True(t, claims[0].IsFull())
	assert.Equal(t, "foo.txt", claims[0].String())
}

func TestParse_SingleRange(t *testing.T) {
	claims, err := Parse("foo.txt:10-20")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Len(t, claims[0].Ranges, 1)
	assert.Equal(t, 10, claims[0].Ranges[0].NewStart)
	assert.Equal(t, 10, claims[0].Ranges[0].NewLines)
}

func TestParse_MultipleRangesAndFiles(t *testing.T) {
	claims, err := Parse("foo.txt:10-20,30-40|bar.txt:1-2")
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Len(t, claims[0].Ranges, 2)
	assert.Equal(t, "bar.txt", claims[1].Path)
}

func TestParse_EmptyRangesRejected(t *testing.T) {
	_, err := Parse("foo.txt:")
	assert.Error(t, err)
}

func TestParse_RoundTrip(t *testing.T) {
	claims, err := Parse("foo.txt:10-20")
	require.NoError(t, err)
	assert.Equal(t, "foo.txt:10-20", claims[0].String())
}

func TestOwnershipClaim_PlusWholeFileAbsorbsPartial(t *testing.T) {
	full := OwnershipClaim{Path: "a.txt"}
	partial := OwnershipClaim{Path: "a.txt", Ranges: []ClaimRange{{NewStart: 1, NewLines: 2}}}

	assert.True(t, full.Plus(partial).IsFull())
	assert.True(t, partial.Plus(full).IsFull())
}

func TestOwnershipClaim_PlusMergesRanges(t *testing.T) {
	a := OwnershipClaim{Path: "a.txt", Ranges: []ClaimRange{{NewStart: 1, NewLines: 2}}}
	b := OwnershipClaim{Path: "a.txt", Ranges: []ClaimRange{{NewStart: 10, NewLines: 2}}}

	merged := a.Plus(b)
	assert.Len(t, merged.Ranges, 2)
}

func TestOwnershipClaim_MinusFullRemovesEverything(t *testing.T) {
	a := OwnershipClaim{Path: "a.txt", Ranges: []ClaimRange{{NewStart: 1, NewLines: 2}}}
	full := OwnershipClaim{Path: "a.txt"}

	taken, remaining := a.Minus(full)
	require.NotNil(t, taken)
	assert.Nil(t, remaining)
}

func TestOwnershipClaim_MinusPartial(t *testing.T) {
	a := OwnershipClaim{Path: "a.txt", Ranges: []ClaimRange{
		{NewStart: 1, NewLines: 2},
		{NewStart: 10, NewLines: 2},
	}}
	other := OwnershipClaim{Path: "a.txt", Ranges: []ClaimRange{{NewStart: 1, NewLines: 2}}}

	taken, remaining := a.Minus(other)
	require.NotNil(t, taken)
	require.NotNil(t, remaining)
	assert.Len(t, taken.Ranges, 1)
	assert.Len(t, remaining.Ranges, 1)
	assert.Equal(t, 10, remaining.Ranges[0].NewStart)
}

func TestOwnershipClaim_MinusDifferentPathNoChange(t *testing.T) {
	a := OwnershipClaim{Path: "a.txt"}
	b := OwnershipClaim{Path: "b.txt"}

	taken, remaining := a.Minus(b)
	assert.Nil(t, taken)
	require.NotNil(t, remaining)
	assert.Equal(t, "a.txt", remaining.Path)
}
