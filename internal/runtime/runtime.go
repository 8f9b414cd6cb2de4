// Package runtime defines the container engine interface used by the docker
// sandbox backend. The abstraction keeps engine calls behind a small surface
// and enables testing through mocking.
package runtime

import (
	"context"
	"io"
)

// LabelManaged marks containers created by vibekit so that listing never
// touches unrelated containers.
const LabelManaged = "io.vibekit.managed"

// ContainerStatus represents the state of a container
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not-found"
	StatusUnknown  ContainerStatus = "unknown"
)

// ContainerInfo holds information about a container
type ContainerInfo struct {
	ID        string
	Name      string
	Status    ContainerStatus
	StartedAt string
	Labels    map[string]string
}

// ExecResult holds the result of executing a command in a container
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CreateOptions holds options for creating a container
type CreateOptions struct {
	Name       string
	Image      string
	User       string
	WorkingDir string
	Env        []string          // KEY=VALUE
	BindMounts map[string]string // host path -> container path
	Network    string            // "bridge" or "none"
	NanoCPUs   int64             // 0 means unlimited
	Memory     int64             // bytes, 0 means unlimited
	Labels     map[string]string
	Start      bool // Start immediately after creation
}

// ExecOptions holds options for executing a command in a container
type ExecOptions struct {
	User       string    // User to run as
	WorkingDir string    // Working directory
	Env        []string  // Environment variables
	Stdin      io.Reader // Standard input
	Stdout     io.Writer // Streamed output, used by ExecStart
	Stderr     io.Writer // Streamed errors, used by ExecStart
	TTY        bool      // Allocate a TTY
}

// ExecSession is a command started inside a container whose output is
// streamed to the writers given in ExecOptions.
type ExecSession interface {
	// Wait blocks until the command exits and returns its exit code.
	Wait(ctx context.Context) (int, error)

	// Close detaches from the command's streams.
	Close() error
}

// Runtime is the interface that container engines must implement.
// All methods should be safe for concurrent use.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "docker", "podman")
	Name() string

	// Create creates a new container and starts it if opts.Start is set
	Create(ctx context.Context, opts CreateOptions) error

	// Start starts an existing container
	Start(ctx context.Context, name string) error

	// Stop stops a running container
	Stop(ctx context.Context, name string) error

	// Destroy stops and removes a container. Removing a missing container
	// is not an error.
	Destroy(ctx context.Context, name string) error

	// Status returns detailed status of a container
	Status(ctx context.Context, name string) (*ContainerInfo, error)

	// Exec executes a command inside a container and captures its output
	Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error)

	// ExecStart starts a command inside a container and streams its output
	ExecStart(ctx context.Context, name string, command []string, opts ExecOptions) (ExecSession, error)

	// List returns all containers managed by vibekit
	List(ctx context.Context) ([]*ContainerInfo, error)
}
