package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// rootGroup is the group key of files directly in the project root.
const rootGroup = "."

// changeGroup is a run of changes under one top-level directory.
type changeGroup struct {
	key     string
	changes []tracker.Change
}

// groupKey returns the top-level directory of a change path.
func groupKey(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return rootGroup
}

// groupChanges groups changes by top-level directory. Root files come
// first, then directories alphabetically; changes keep path order.
func groupChanges(changes tracker.ChangeSet) []changeGroup {
	if len(changes) == 0 {
		return nil
	}

	groupMap := make(map[string]*changeGroup)
	for _, c := range changes.Sorted() {
		key := groupKey(c.Path)
		g, ok := groupMap[key]
		if !ok {
			g = &changeGroup{key: key}
			groupMap[key] = g
		}
		g.changes = append(g.changes, c)
	}

	groups := make([]changeGroup, 0, len(groupMap))
	for _, g := range groupMap {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].key == rootGroup || groups[j].key == rootGroup {
			return groups[i].key == rootGroup
		}
		return groups[i].key < groups[j].key
	})

	return groups
}

// headerStyle is the style for group header lines.
var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("241"))

// groupHeader renders a group header with its change count.
func groupHeader(g changeGroup) string {
	label := g.key + "/"
	if g.key == rootGroup {
		label = "(project root)"
	}
	return headerStyle.Render(label) + mutedStyle.Render(" "+plural(len(g.changes), "change"))
}

// shortenPath keeps the last two components of a long path for display.
func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		short := ".../" + strings.Join(parts[len(parts)-2:], "/")
		if len(short) <= maxLen {
			return short
		}
	}
	return "..." + path[len(path)-maxLen+3:]
}
