package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10)

	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// kindMarker returns the one-character marker and style of a change kind.
func kindMarker(kind tracker.ChangeKind) string {
	switch kind {
	case tracker.Added:
		return addedStyle.Render("+")
	case tracker.Deleted:
		return deletedStyle.Render("-")
	default:
		return modifiedStyle.Render("~")
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
