package tracker

import (
	"path"
	"strings"
)

// DefaultIgnore is always excluded from snapshots, diffs, and mirroring:
// version-control metadata, dependency caches, and vibekit's own
// metadata directory.
var DefaultIgnore = []string{
	".git",
	".hg",
	".svn",
	".jj",
	"node_modules",
	".venv",
	"__pycache__",
	".vibekit",
}

// Matcher decides which paths are excluded from tracking. The same
// Matcher must be used for the snapshot and every diff against it.
//
// A pattern without a slash matches any single path component, so "dist"
// excludes every directory or file named dist. A pattern containing a
// slash is matched against the whole slash-separated relative path and
// excludes everything beneath a match.
type Matcher struct {
	component []string
	anchored  []string
}

// NewMatcher returns a Matcher for DefaultIgnore plus extra patterns.
func NewMatcher(extra ...string) *Matcher {
	return compile(append(append([]string{}, DefaultIgnore...), extra...))
}

func compile(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			m.anchored = append(m.anchored, p)
		} else {
			m.component = append(m.component, p)
		}
	}
	return m
}

// Match reports whether rel, a slash-separated path relative to the
// tracked root, is excluded.
func (m *Matcher) Match(rel string) bool {
	if m == nil || rel == "" || rel == "." {
		return false
	}

	for _, part := range strings.Split(rel, "/") {
		for _, p := range m.component {
			if ok, _ := path.Match(p, part); ok {
				return true
			}
		}
	}

	for _, p := range m.anchored {
		// Check the path and each of its ancestors.
		for cur := rel; cur != "." && cur != ""; cur = path.Dir(cur) {
			if ok, _ := path.Match(p, cur); ok {
				return true
			}
		}
	}

	return false
}

// Patterns returns the effective pattern list.
func (m *Matcher) Patterns() []string {
	return append(append([]string{}, m.component...), m.anchored...)
}
