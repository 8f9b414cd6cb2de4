package session

import (
	"context"
	"time"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/clock"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/logging"
)

// Phase is a stage of the shutdown state machine for a supervised process.
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
	PhaseKilled   Phase = "killed"
)

// Outcome describes how a supervised process ended.
type Outcome struct {
	ExitCode int
	// Phase is the phase the process exited in. PhaseRunning means it
	// exited on its own.
	Phase Phase
	// TimedOut is set when the command timeout, rather than the caller,
	// started the shutdown.
	TimedOut bool
}

// Interrupted reports whether the process was asked to stop.
func (o Outcome) Interrupted() bool {
	return o.Phase != PhaseRunning
}

// Supervisor waits for a process and shuts it down in two stages once
// its context ends: an interrupt, then a kill when the grace period
// elapses on Clock.
type Supervisor struct {
	Clock clock.Clock
	Grace time.Duration

	// OnPhase, when set, is called on every transition.
	OnPhase func(Phase)
}

type waitResult struct {
	code int
	err  error
}

// Supervise blocks until proc exits. Only a failure to wait for the
// process is returned as an error.
func (s *Supervisor) Supervise(ctx context.Context, proc backend.Process) (Outcome, error) {
	done := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		done <- waitResult{code, err}
	}()

	select {
	case r := <-done:
		return s.outcome(r, PhaseRunning)
	case <-ctx.Done():
	}

	s.transition(PhaseStopping)
	if err := proc.Interrupt(); err != nil {
		logging.Warn("failed to interrupt process", "error", err)
	}

	select {
	case r := <-done:
		return s.outcome(r, PhaseStopping)
	case <-s.Clock.After(s.Grace):
	}

	s.transition(PhaseKilled)
	if err := proc.Kill(); err != nil {
		logging.Warn("failed to kill process", "error", err)
	}
	return s.outcome(<-done, PhaseKilled)
}

func (s *Supervisor) transition(p Phase) {
	logging.Debug("agent shutdown", "phase", p, "grace", s.Grace)
	if s.OnPhase != nil {
		s.OnPhase(p)
	}
}

func (s *Supervisor) outcome(r waitResult, phase Phase) (Outcome, error) {
	out := Outcome{ExitCode: r.code, Phase: phase}
	if r.err != nil {
		return out, sberrors.ExecutionError("failed to wait for agent", r.err)
	}
	return out, nil
}
