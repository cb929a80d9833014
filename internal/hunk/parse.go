package hunk

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parse reads a unified diff (the body following the "diff --git"
// headers, starting at the first "--- "/"+++ " file-header pair) and
// returns the hunks it contains, grouped by file.
//
// Parse accepts the output of "git diff" and "git diff -U0" alike: it
// does not itself enforce a context width, it only records what the
// hunk header claims.
func Parse(r io.Reader) ([]Hunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		hunks       []Hunk
		currentFile string
		current     *Hunk
	)

	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			currentFile = ""

		case strings.HasPrefix(line, "+++ "):
			currentFile = parseDiffPath(line[4:])

		case strings.HasPrefix(line, "--- "):
			// The old-file path; only used to detect deletions,
			// where "+++ " is "/dev/null" and we want the old name.
			if currentFile == "" {
				currentFile = parseDiffPath(line[4:])
			}

		case strings.HasPrefix(line, "@@ "):
			flush()
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("parse hunk header %q: %w", line, err)
			}
			h.File = currentFile
			current = &h

		case current != nil && len(line) > 0 && (line[0] == ' ' || line[0] == '+' || line[0] == '-'):
			current.Lines = append(current.Lines, line)

		case current != nil && strings.HasPrefix(line, `\ No newline`):
			// ignore

		default:
			// Any other line (e.g. "index ..." or a blank context
			// line written with no leading space) ends the current
			// hunk's body only if it's not part of it; since hunks
			// are always followed by another header or EOF, just
			// leave current as-is and let the next header flush it.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan diff: %w", err)
	}
	flush()

	return hunks, nil
}

func parseDiffPath(s string) string {
	s = strings.TrimSpace(s)
	if s == "/dev/null" {
		return ""
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(s, prefix) {
			return s[len(prefix):]
		}
	}
	return s
}

// parseHunkHeader parses the "@@ -old_start[,old_lines] +new_start[,new_lines] @@[ context]" line.
func parseHunkHeader(line string) (Hunk, error) {
	rest, ok := strings.CutPrefix(line, "@@ ")
	if !ok {
		return Hunk{}, fmt.Errorf("missing @@ prefix")
	}
	end := strings.Index(rest, " @@")
	if end < 0 {
		return Hunk{}, fmt.Errorf("missing @@ suffix")
	}
	ranges := rest[:end]

	fields := strings.Fields(ranges)
	if len(fields) != 2 {
		return Hunk{}, fmt.Errorf("expected two range fields, got %d", len(fields))
	}

	oldStart, oldLines, err := parseRangeField(fields[0], '-')
	if err != nil {
		return Hunk{}, fmt.Errorf("old range: %w", err)
	}
	newStart, newLines, err := parseRangeField(fields[1], '+')
	if err != nil {
		return Hunk{}, fmt.Errorf("new range: %w", err)
	}

	return Hunk{
		OldStart: oldStart,
		OldLines: oldLines,
		NewStart: newStart,
		NewLines: newLines,
	}, nil
}

func parseRangeField(s string, sign byte) (start, lines int, err error) {
	if len(s) == 0 || s[0] != sign {
		return 0, 0, fmt.Errorf("expected leading %q, got %q", sign, s)
	}
	s = s[1:]

	startStr, linesStr, ok := strings.Cut(s, ",")
	if !ok {
		// No comma means a single line.
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, err
		}
		return n, 1, nil
	}

	start, err = strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, err
	}
	lines, err = strconv.Atoi(linesStr)
	if err != nil {
		return 0, 0, err
	}
	return start, lines, nil
}
