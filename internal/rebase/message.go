package rebase

import (
	"slices"
	"strings"

	"github.com/gitbutlerapp/but/internal/git"
	"github.com/gitbutlerapp/but/internal/maputil"
)

// BuildMessage renders a commit message with headers appended as trailer
// lines in its body, replacing any trailer block msg.Body already ends in.
// Exported for internal/commit, which writes commits directly rather than
// through CherryRebaseGroup.
func BuildMessage(msg git.CommitMessage, headers map[string][]string) string {
	if len(headers) == 0 {
		return msg.String()
	}

	keys := maputil.Keys(headers)
	slices.Sort(keys)

	var trailer strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if trailer.Len() > 0 {
				trailer.WriteByte('\n')
			}
			trailer.WriteString(capitalizeTrailerKey(k))
			trailer.WriteString(": ")
			trailer.WriteString(v)
		}
	}

	// Drop the trailer block body already ends in, recognized the same
	// way git.ReadCommit parses Headers, so headers replaces it.
	body := msg.Body
	start := strings.LastIndex(body, "\n\n") + 1 // 0 for a one-paragraph body
	last := strings.TrimPrefix(body[start:], "\n")
	isTrailers := last != ""
	for _, line := range strings.Split(last, "\n") {
		if key, _, ok := strings.Cut(line, ":"); !ok || strings.TrimSpace(key) == "" {
			isTrailers = false
			break
		}
	}
	if isTrailers {
		body = strings.TrimRight(body[:start], "\n")
	}
	if body != "" {
		body += "\n\n" + trailer.String()
	} else {
		body = trailer.String()
	}

	return (git.CommitMessage{Subject: msg.Subject, Body: body}).String()
}

func capitalizeTrailerKey(k string) string {
	if k == "" {
		return k
	}
	parts := strings.Split(k, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
