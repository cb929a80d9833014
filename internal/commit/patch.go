// Package commit implements the commit engine: building commits from a
// worktree diff selection, amending, moving ownership between commits,
// reordering/squashing/dropping via the rebase engine's editor plan, and
// absorbing loose worktree hunks into the commit they belong to.
package commit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gitbutlerapp/but/internal/hunk"
)

// ApplyHunks applies a set of additive hunks (see hunk.ToAdditiveHunks) to
// a file's old content, returning its new content. Hunks need not be
// pre-sorted; they are ordered by OldStart before being applied, and must
// not overlap one another.
func ApplyHunks(content string, hunks []hunk.Hunk) (string, error) {
	var lines []string
	if content != "" {
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	sorted := append([]hunk.Hunk(nil), hunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OldStart < sorted[j].OldStart })

	var out []string
	cursor := 0
	for _, h := range sorted {
		start := h.OldStart
		if h.OldLines > 0 {
			start--
		}
		if start < cursor {
			return "", fmt.Errorf("apply hunks: %s overlaps a preceding hunk ending at line %d", h, cursor)
		}
		if start > len(lines) {
			return "", fmt.Errorf("apply hunks: %s starts past end of file (%d lines)", h, len(lines))
		}

		out = append(out, lines[cursor:start]...)
		for _, l := range h.Lines {
			if l == "" {
				continue
			}
			switch l[0] {
			case ' ', '+':
				out = append(out, l[1:])
			case '-':
				// dropped from the new content
			}
		}
		cursor = start + h.OldLines
	}
	if cursor > len(lines) {
		return "", fmt.Errorf("apply hunks: final hunk consumes past end of file (%d lines)", len(lines))
	}
	out = append(out, lines[cursor:]...)

	if len(out) == 0 {
		return "", nil
	}
	return strings.Join(out, "\n") + "\n", nil
}
