// Package tui provides terminal rendering for vibekit.
//
// Reports are plain strings styled with lipgloss, so they degrade to
// plain text when output is not a terminal:
//
//	fmt.Print(tui.RenderChanges(changes))
//	fmt.Print(tui.RenderSyncReport(result, changes))
//	fmt.Print(tui.RenderStatus(tui.StatusView{...}))
//
// Changes are grouped by top-level directory, with files in the project
// root listed first.
//
// # Spinner
//
// Slow steps such as provisioning a container show a Bubble Tea spinner
// on stderr when it is a terminal:
//
//	err := tui.WithSpinner(os.Stderr, "Provisioning sandbox...", func() error {
//	    return provision(ctx)
//	})
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - spinner component
//   - github.com/charmbracelet/lipgloss - Styling
package tui
