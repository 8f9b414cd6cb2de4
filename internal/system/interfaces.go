// Package system provides abstractions for host process operations to
// enable testing.
package system

import (
	"io"
)

// Command describes a process to start on the host.
type Command struct {
	Argv   []string
	Dir    string
	Env    []string // full environment, KEY=VALUE
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive keeps the process in the caller's process group so it
	// can own the terminal. Signals then reach the process alone.
	Interactive bool
}

// Process is a started command that can be signalled and awaited.
type Process interface {
	// Wait blocks until the process exits and returns its exit code.
	// A process killed by a signal reports 128 plus the signal number.
	// Wait may be called more than once.
	Wait() (int, error)

	// Interrupt asks the process and its children to stop.
	Interrupt() error

	// Kill terminates the process and its children immediately.
	Kill() error
}

// Executor starts host processes.
type Executor interface {
	Start(cmd Command) (Process, error)
}

// Default instance using real OS operations.
var defaultExecutor Executor = &osExecutor{}

// DefaultExecutor returns the default Executor implementation.
func DefaultExecutor() Executor {
	return defaultExecutor
}

// SetDefaultExecutor sets the default Executor (useful for testing).
func SetDefaultExecutor(exec Executor) {
	defaultExecutor = exec
}

// ResetDefaults restores the default OS implementations.
func ResetDefaults() {
	defaultExecutor = &osExecutor{}
}
