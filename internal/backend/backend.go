// Package backend implements the isolation backends a session runs in.
//
// Three backends form a closed set:
//   - none: commands run directly in the host working directory
//   - local: commands run on the host inside a shadow copy of the project
//   - docker: commands run in a container with the shadow copy bind-mounted
//
// Every backend exposes its isolated root as a host path so the change
// tracker and the sync reconciler can work on it without backend-specific
// code.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/runtime"
	"github.com/Ramtinhoss/vibekit/internal/system"
)

// Kind identifies an isolation backend
type Kind string

const (
	KindNone   Kind = "none"
	KindLocal  Kind = "local"
	KindDocker Kind = "docker"
)

// Network is the network policy for a sandbox
type Network string

const (
	NetworkBridge Network = "bridge"
	NetworkNone   Network = "none"
)

// State is the three-state status of a backend resource
type State string

const (
	StateNotCreated State = "not-created"
	StateStopped    State = "stopped"
	StateRunning    State = "running"
)

// Inspection describes an existing backend resource.
type Inspection struct {
	State       State
	ConfigHash  string
	ContainerID string
}

// Handle is a ready backend for one session.
type Handle struct {
	Kind        Kind
	Name        string
	Root        string // host path of the isolated root
	Workdir     string // working directory as seen by executed commands
	ContainerID string
	ConfigHash  string
	Reused      bool // an existing resource with matching parameters was resumed
	Recreated   bool // an existing resource was replaced because its parameters drifted

	// env holds injected variables for host backends. Container backends
	// bake them into the container at create time instead.
	env []string
}

// ExecRequest describes a command to run in a sandbox.
type ExecRequest struct {
	Argv   []string
	Env    []string // extra KEY=VALUE entries
	Dir    string   // relative to the working directory, empty for the root
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	TTY    bool
}

// Process is a command started in a sandbox.
type Process = system.Process

// ExecResult holds the outcome of a captured command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Provider provisions and drives one kind of backend.
type Provider interface {
	Kind() Kind

	// Inspect reports the state of the resource cfg names.
	Inspect(ctx context.Context, cfg *Config) (*Inspection, error)

	// Provision creates a new resource and returns a ready handle.
	Provision(ctx context.Context, cfg *Config) (*Handle, error)

	// Resume returns a ready handle for an existing resource, starting it
	// if it is stopped.
	Resume(ctx context.Context, cfg *Config, ins *Inspection) (*Handle, error)

	// Start runs a command in the sandbox.
	Start(ctx context.Context, h *Handle, req ExecRequest) (Process, error)

	// Stop stops the resource but keeps it for reuse.
	Stop(ctx context.Context, h *Handle) error

	// Teardown destroys the resource. Missing resources are not an error.
	Teardown(ctx context.Context, h *Handle) error
}

// Options configures provider construction.
type Options struct {
	Runtime  runtime.Runtime
	Executor system.Executor
}

// New returns the provider for kind.
func New(kind Kind, opts Options) (Provider, error) {
	executor := opts.Executor
	if executor == nil {
		executor = system.DefaultExecutor()
	}

	switch kind {
	case KindNone:
		return &noneProvider{exec: executor}, nil
	case KindLocal:
		return &localProvider{exec: executor}, nil
	case KindDocker:
		if opts.Runtime == nil {
			return nil, sberrors.ProvisioningError("docker backend requires a container runtime", nil)
		}
		return &dockerProvider{rt: opts.Runtime}, nil
	default:
		return nil, sberrors.ConfigError(fmt.Sprintf("unknown sandbox backend %q", kind), nil)
	}
}

// Exec runs a command to completion and captures its output. If ctx ends
// first the command is killed and ctx's error is returned.
func Exec(ctx context.Context, p Provider, h *Handle, req ExecRequest) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	req.Stdout = &stdout
	req.Stderr = &stderr
	req.TTY = false

	proc, err := p.Start(ctx, h, req)
	if err != nil {
		return nil, err
	}

	type waitResult struct {
		code int
		err  error
	}
	done := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		done <- waitResult{code, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, sberrors.ExecutionError("command failed to run", r.err)
		}
		return &ExecResult{ExitCode: r.code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	case <-ctx.Done():
		_ = proc.Kill()
		<-done
		return &ExecResult{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	}
}
