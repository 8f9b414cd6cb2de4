package tui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Ramtinhoss/vibekit/internal/logging"
)

type spinnerDoneMsg struct{}

type spinnerModel struct {
	spinner spinner.Model
	label   string
	done    bool
}

func newSpinnerModel(label string) spinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
	)
	return spinnerModel{spinner: s, label: label}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case spinnerDoneMsg:
		m.done = true
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Spinner shows an animated label on a terminal until stopped. On any
// other writer it does nothing.
type Spinner struct {
	out   io.Writer
	label string

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewSpinner creates a stopped Spinner.
func NewSpinner(out io.Writer, label string) *Spinner {
	return &Spinner{out: out, label: label}
}

// Start shows the spinner. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.program != nil || !IsTerminal(s.out) {
		return
	}

	// Signals stay with the caller so an interrupt cancels the work
	// rather than just the animation.
	p := tea.NewProgram(newSpinnerModel(s.label),
		tea.WithInput(nil),
		tea.WithOutput(s.out),
		tea.WithoutSignalHandler(),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Run(); err != nil {
			logging.Debug("spinner stopped", "error", err)
		}
	}()

	s.program = p
	s.done = done
}

// Stop clears the spinner and waits for the terminal to be released.
// Stopping a stopped spinner is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.program == nil {
		return
	}
	s.program.Send(spinnerDoneMsg{})
	<-s.done
	s.program = nil
}

// WithSpinner runs fn while a spinner labelled label is shown on out.
func WithSpinner(out io.Writer, label string, fn func() error) error {
	sp := NewSpinner(out, label)
	sp.Start()
	defer sp.Stop()
	return fn()
}
