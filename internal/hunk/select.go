package hunk

// ToAdditiveHunks decomposes a user's hunk selection into the additive
// set of hunks whose union equals the selection, anchoring each piece of
// the selection onto the full-context hunk it falls within.
//
// selection holds the (possibly partial) hunks a caller wants applied —
// for example, only the additions of a larger hunk, or a sub-range of
// lines picked out of the middle of one. full is the hunk set produced
// from a full-context diff of the same file; zero is the same diff
// generated with no context lines, used to disambiguate selections that
// sit at a hunk boundary where the full-context range is ambiguous.
//
// A selection that cannot be matched to any hunk in full (its new-file
// range falls outside every full hunk, e.g. it names a line that no
// longer exists) is returned in rejected rather than applied.
func ToAdditiveHunks(selection, full, zero []Hunk) (applied, rejected []Hunk) {
	for _, sel := range selection {
		anchor, ok := findAnchor(sel, full)
		if !ok {
			anchor, ok = findAnchor(sel, zero)
		}
		if !ok {
			rejected = append(rejected, sel)
			continue
		}

		out := sel
		out.File = anchor.File
		applied = append(applied, out)
	}
	return applied, rejected
}

// findAnchor locates the hunk in candidates whose new-file range covers,
// contains, or starts at the same line as sel's new-file range.
func findAnchor(sel Hunk, candidates []Hunk) (Hunk, bool) {
	selRange := Range{Start: sel.NewStart, Lines: sel.NewLines}

	for _, c := range candidates {
		if c.File != "" && sel.File != "" && c.File != sel.File {
			continue
		}

		cRange := Range{Start: c.NewStart, Lines: c.NewLines}
		switch {
		case selRange.CoveredBy(cRange.Start, cRange.Lines):
			return c, true
		case cRange.Contains(selRange.Start, selRange.Lines):
			return c, true
		case c.NewStart == sel.NewStart:
			return c, true
		}
	}
	return Hunk{}, false
}
