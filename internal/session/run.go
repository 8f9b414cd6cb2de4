package session

import (
	"context"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
	"github.com/Ramtinhoss/vibekit/internal/watch"
)

// Report is the outcome of a complete agent invocation.
type Report struct {
	SessionID string
	Outcome   Outcome

	// Sync is the final sync result. It is nil when the final diff could
	// not be computed, in which case SyncErr says why.
	Sync    *reconcile.Result
	SyncErr error
	// Changes is the change set the final sync applied.
	Changes tracker.ChangeSet

	// Pending is set when the isolated root still holds changes the host
	// has not received.
	Pending bool
}

// Err maps the report onto the process exit policy: a non-zero agent
// status is forwarded unchanged; otherwise an incomplete sync fails with
// the sync conflict or sync I/O code.
func (r *Report) Err() error {
	if r.Outcome.ExitCode != 0 {
		return sberrors.AgentExit(r.Outcome.ExitCode)
	}
	if r.SyncErr != nil {
		return r.SyncErr
	}
	if r.Sync != nil {
		return r.Sync.Err()
	}
	return nil
}

type runOptions struct {
	onActivity func(watch.Event)
}

// RunOption configures Run.
type RunOption func(*runOptions)

// WithActivity reports file activity in the isolated root while the
// agent runs.
func WithActivity(fn func(watch.Event)) RunOption {
	return func(o *runOptions) { o.onActivity = fn }
}

// Run starts a session, runs the agent in it, applies its changes to the
// host and ends the session. The final sync is attempted even when the
// agent did not exit on its own. A killed or timed-out agent, or one whose
// exit status could not be read, leaves the session aborted rather than
// closed.
//
// The returned error covers failures of the sandbox layer (lock,
// provisioning, timeout). The agent's status and the sync outcome are in
// the report.
func (o *Orchestrator) Run(ctx context.Context, cfg *Config, req backend.ExecRequest, opts ...RunOption) (*Report, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	s, err := o.StartSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	report := &Report{SessionID: s.ID}

	// Cleanup must finish even when ctx was cancelled by an interrupt.
	bg := context.WithoutCancel(ctx)

	stopWatch := s.watchActivity(ro.onActivity)
	out, runErr := s.RunAgent(ctx, req)
	stopWatch()
	report.Outcome = out

	if runErr != nil {
		// The agent ran before the failure and may have written files;
		// only a failure to start it leaves nothing to sync.
		if out.Phase != "" {
			report.Sync, report.SyncErr = s.SyncNow(bg)
			report.Changes = s.synced
		}
		s.Abort(bg, runErr)
		report.Pending = s.dirty && s.Backend != backend.KindNone
		return report, runErr
	}

	report.Sync, report.SyncErr = s.SyncNow(bg)
	report.Changes = s.synced

	var finalErr error
	switch {
	case out.TimedOut:
		finalErr = sberrors.TimeoutError("agent", cfg.CommandTimeout, nil)
		s.Abort(bg, finalErr)
	case out.Phase == PhaseKilled:
		s.Abort(bg, sberrors.ExecutionError("agent killed after grace period", nil))
	default:
		if err := s.EndSession(bg); err != nil {
			logging.Warn("failed to end session cleanly", "session", s.ID, "error", err)
		}
	}

	report.Pending = s.dirty && s.Backend != backend.KindNone
	return report, finalErr
}

// watchActivity forwards file activity to fn until the returned function
// is called. Watching is best effort.
func (s *Session) watchActivity(fn func(watch.Event)) func() {
	if fn == nil || s.handle == nil {
		return func() {}
	}

	w, err := watch.New(s.handle.Root, s.matcher.Match)
	if err != nil {
		logging.Warn("file activity unavailable", "error", err)
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(context.Background(), fn)
	}()

	return func() {
		w.Close()
		<-done
	}
}
