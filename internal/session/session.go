// Package session orchestrates sandbox sessions: one live session per
// working directory, a ready backend, a baseline of the isolated root,
// commands run inside it, and the changes reconciled back to the host.
//
// A session moves through
//
//	provisioning -> running -> (syncing -> running)* -> terminating -> closed
//
// and can end in aborted from any state before closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	shellquote "github.com/kballard/go-shellquote"

	"github.com/Ramtinhoss/vibekit/internal/audit"
	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/clock"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/lifecycle"
	"github.com/Ramtinhoss/vibekit/internal/lockfile"
	"github.com/Ramtinhoss/vibekit/internal/logging"
	"github.com/Ramtinhoss/vibekit/internal/reconcile"
	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// State is a session lifecycle state.
type State string

const (
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateSyncing      State = "syncing"
	StateTerminating  State = "terminating"
	StateClosed       State = "closed"
	StateAborted      State = "aborted"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateAborted
}

// Recorder receives session events. The core does not depend on how they
// are stored.
type Recorder interface {
	Record(event audit.Event) error
}

// RecorderFactory returns the recorder for a project.
type RecorderFactory func(p *config.Paths) Recorder

// Orchestrator starts sessions and runs the operations that act on a
// project outside a live session.
type Orchestrator struct {
	lifecycle *lifecycle.Manager
	clock     clock.Clock
	recorders RecorderFactory
	newID     func() string
	onState   func(*Session, State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock that drives shutdown grace periods.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithRecorders sets where session events are recorded.
func WithRecorders(f RecorderFactory) Option {
	return func(o *Orchestrator) { o.recorders = f }
}

// WithIDGenerator sets the session ID generator.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// WithStateHook registers a function called on every state transition.
func WithStateHook(f func(*Session, State)) Option {
	return func(o *Orchestrator) { o.onState = f }
}

// New creates an Orchestrator on top of a lifecycle manager. Events go to
// each project's audit log unless WithRecorders says otherwise.
func New(lm *lifecycle.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		lifecycle: lm,
		clock:     clock.Real(),
		recorders: func(p *config.Paths) Recorder { return audit.NewLogger(p.EventsFile) },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session is a live sandbox session.
type Session struct {
	ID               string
	WorkingDirectory string
	Backend          backend.Kind
	Network          backend.Network
	Persistent       bool
	CreatedAt        time.Time

	orch     *Orchestrator
	cfg      *Config
	paths    *config.Paths
	matcher  *tracker.Matcher
	recorder Recorder
	release  func()

	handle   *backend.Handle
	provider backend.Provider
	baseline tracker.Baseline
	// ledger records what syncs of this session wrote to the host.
	ledger reconcile.Ledger

	// mu serializes RunCommand, RunAgent, SyncNow and EndSession.
	mu sync.Mutex
	// dirty is set once a command ran and cleared by a complete sync.
	dirty bool
	// synced is the change set of the last sync.
	synced tracker.ChangeSet

	stateMu sync.RWMutex
	state   State
}

// State returns the current state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()

	logging.Debug("session state", "session", s.ID, "state", st)
	if s.orch.onState != nil {
		s.orch.onState(s, st)
	}
}

// Handle returns the backend the session runs in. It is nil until
// provisioning succeeds.
func (s *Session) Handle() *backend.Handle {
	return s.handle
}

// Paths returns the project paths of the session.
func (s *Session) Paths() *config.Paths {
	return s.paths
}

// Matcher returns the ignore rules used for the session's baseline.
func (s *Session) Matcher() *tracker.Matcher {
	return s.matcher
}

// acquire claims dir for owner in this process and through the lockfile.
func (o *Orchestrator) acquire(p *config.Paths, owner string) (func(), error) {
	if err := active.claim(p.ProjectDir, owner); err != nil {
		return nil, sberrors.LockConflictError(p.ProjectDir, err)
	}

	lock := lockfile.New(p.LockFile)
	if err := lock.TryAcquire(); err != nil {
		active.release(p.ProjectDir, owner)
		if errors.Is(err, lockfile.ErrLocked) {
			return nil, sberrors.LockConflictError(p.ProjectDir, err)
		}
		return nil, sberrors.ProvisioningError("failed to acquire session lock", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Release(); err != nil {
				logging.Warn("failed to release session lock", "path", lock.Path(), "error", err)
			}
			active.release(p.ProjectDir, owner)
		})
	}, nil
}

func resolvePaths(dir string) (*config.Paths, error) {
	p, err := config.NewPaths(dir)
	if err != nil {
		return nil, sberrors.ConfigError("invalid working directory", err)
	}
	return p, nil
}

// checkPending refuses to start over a previous session's unsynced
// changes, since mirroring the project would overwrite them.
func checkPending(p *config.Paths) error {
	rec, err := config.LoadSessionRecord(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logging.Warn("ignoring unreadable session record", "path", p.SessionFile, "error", err)
		return nil
	}
	if rec.Pending {
		return sberrors.PendingChangesError(p.ProjectDir)
	}
	return nil
}

// StartSession provisions a backend for cfg, mirrors the project into it
// and records the baseline. It fails with a lock conflict when another
// session owns the working directory.
func (o *Orchestrator) StartSession(ctx context.Context, cfg *Config) (*Session, error) {
	paths, err := resolvePaths(cfg.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	id := o.newID()
	release, err := o.acquire(paths, id)
	if err != nil {
		return nil, err
	}

	if err := checkPending(paths); err != nil {
		release()
		return nil, err
	}

	s := &Session{
		ID:               id,
		WorkingDirectory: paths.ProjectDir,
		Backend:          cfg.Backend,
		Network:          cfg.Network,
		Persistent:       cfg.Persistent,
		CreatedAt:        o.clock.Now(),
		orch:             o,
		cfg:              cfg,
		paths:            paths,
		matcher:          tracker.NewMatcher(cfg.Ignore...),
		recorder:         o.recorders(paths),
		release:          release,
	}
	s.setState(StateProvisioning)
	s.record(audit.Event{
		Type:    audit.EventSessionStart,
		Details: fmt.Sprintf("backend=%s network=%s persistent=%t", cfg.Backend, cfg.Network, cfg.Persistent),
	})

	if err := s.provision(ctx); err != nil {
		s.mu.Lock()
		s.finish(context.WithoutCancel(ctx), StateAborted, err)
		s.mu.Unlock()
		return nil, err
	}

	s.setState(StateRunning)
	return s, nil
}

func (s *Session) provision(ctx context.Context) error {
	h, err := s.orch.lifecycle.EnsureReady(ctx, s.cfg.backendConfig(s.paths))
	if err != nil {
		return err
	}
	s.handle = h

	s.provider, err = s.orch.lifecycle.Provider(h.Kind)
	if err != nil {
		return err
	}

	switch {
	case h.Recreated:
		s.record(audit.Event{Type: audit.EventRecreate, Details: describeHandle(h)})
	case h.Reused:
		s.record(audit.Event{Type: audit.EventReuse, Details: describeHandle(h)})
		// Secret values are baked in at create time and are not part of
		// the configuration hash, so a rotated value goes unnoticed.
		if h.Kind == backend.KindDocker && s.cfg.Secrets != nil && s.cfg.Secrets.Len() > 0 {
			logging.Warn("reused container keeps the secret values it was created with; run with --fresh or 'vibekit clean' to apply rotated secrets",
				"session", s.ID, "container", h.Name, "secrets", s.cfg.Secrets.Names())
		}
	default:
		s.record(audit.Event{Type: audit.EventProvision, Details: describeHandle(h)})
	}

	if h.Kind != backend.KindNone {
		stats, err := tracker.Mirror(ctx, s.paths.ProjectDir, h.Root, s.matcher)
		if err != nil {
			return sberrors.ProvisioningError("failed to copy the project into the sandbox", err)
		}
		logging.Debug("project mirrored", "session", s.ID, "copied", stats.Copied,
			"unchanged", stats.Unchanged, "removed", stats.Removed)
	}

	base, err := tracker.Snapshot(ctx, h.Root, s.matcher)
	if err != nil {
		return sberrors.ProvisioningError("failed to snapshot the sandbox", err)
	}
	s.baseline = base
	s.ledger = reconcile.Ledger{}

	if h.Kind != backend.KindNone {
		if err := s.paths.EnsureMetaDir(); err != nil {
			return sberrors.ProvisioningError("failed to prepare metadata directory", err)
		}
		if err := tracker.SaveBaseline(s.paths.BaselineFile, base, s.matcher); err != nil {
			return sberrors.ProvisioningError("failed to save baseline", err)
		}
		if err := os.Remove(s.paths.LedgerFile); err != nil && !os.IsNotExist(err) {
			return sberrors.ProvisioningError("failed to reset sync ledger", err)
		}
	}

	// Until the session ends cleanly the isolated root may hold changes
	// the host has not seen.
	if err := s.saveRecord(StateRunning, h.Kind != backend.KindNone); err != nil {
		return sberrors.ProvisioningError("failed to save session record", err)
	}

	logging.Info("session ready", "session", s.ID, "backend", h.Kind, "root", h.Root, "files", len(base))
	return nil
}

func describeHandle(h *backend.Handle) string {
	if h.Kind == backend.KindDocker {
		return fmt.Sprintf("backend=docker name=%s hash=%s", h.Name, h.ConfigHash)
	}
	return fmt.Sprintf("backend=%s root=%s", h.Kind, h.Root)
}

func (s *Session) saveRecord(st State, pending bool) error {
	rec := &config.SessionRecord{
		ID:               s.ID,
		WorkingDirectory: s.WorkingDirectory,
		Backend:          string(s.Backend),
		Network:          string(s.Network),
		Persistent:       s.Persistent,
		ResourceName:     s.handle.Name,
		IsolatedRoot:     s.handle.Root,
		ConfigHash:       s.handle.ConfigHash,
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
		State:            string(st),
		PID:              os.Getpid(),
		Pending:          pending,
	}
	return config.SaveSessionRecord(s.paths, rec)
}

func (s *Session) record(e audit.Event) {
	e.Session = s.ID
	if e.Timestamp.IsZero() {
		e.Timestamp = s.orch.clock.Now()
	}
	if err := s.recorder.Record(e); err != nil {
		logging.Warn("failed to record session event", "type", e.Type, "error", err)
	}
}

func (s *Session) requireRunning() error {
	if st := s.State(); st != StateRunning {
		return sberrors.ValidationError(fmt.Sprintf("session %s is %s", s.ID, st))
	}
	return nil
}

// commandContext applies the configured command timeout.
func (s *Session) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CommandTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

// timedOut reports whether cctx ended because of the command timeout
// rather than because the caller cancelled ctx.
func timedOut(ctx, cctx context.Context) bool {
	return ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded)
}

// RunCommand runs argv to completion in the sandbox and captures its
// output. A non-zero exit status is reported in the result, not as an
// error. When the command timeout expires the command is killed and the
// session is aborted with a timeout error.
func (s *Session) RunCommand(ctx context.Context, argv []string) (*backend.ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(); err != nil {
		return nil, err
	}
	s.dirty = true

	cctx, cancel := s.commandContext(ctx)
	defer cancel()

	res, err := backend.Exec(cctx, s.provider, s.handle, backend.ExecRequest{Argv: argv})
	if err != nil {
		if timedOut(ctx, cctx) {
			terr := sberrors.TimeoutError("command", s.cfg.CommandTimeout, err)
			s.finish(context.WithoutCancel(ctx), StateAborted, terr)
			return res, terr
		}
		if ctx.Err() != nil {
			err = sberrors.ExecutionError("command cancelled", err)
		}
		s.record(audit.Event{Type: audit.EventError, Details: err.Error()})
		return res, err
	}

	s.recordExec(argv, res.ExitCode, "")
	return res, nil
}

// RunAgent runs the agent with its standard streams attached and waits
// for it. When ctx ends, or the command timeout expires, the agent is
// interrupted and killed after the grace period.
func (s *Session) RunAgent(ctx context.Context, req backend.ExecRequest) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(); err != nil {
		return Outcome{}, err
	}

	// The exec streams must outlive ctx so the agent can be observed
	// through its grace period.
	proc, err := s.provider.Start(context.WithoutCancel(ctx), s.handle, req)
	if err != nil {
		s.record(audit.Event{Type: audit.EventError, Details: err.Error()})
		return Outcome{}, err
	}
	s.dirty = true

	cctx, cancel := s.commandContext(ctx)
	defer cancel()

	sup := &Supervisor{
		Clock: s.orch.clock,
		Grace: s.cfg.GracePeriod,
		OnPhase: func(p Phase) {
			logging.Info("stopping agent", "session", s.ID, "phase", p)
		},
	}
	out, err := sup.Supervise(cctx, proc)
	out.TimedOut = out.Interrupted() && timedOut(ctx, cctx)

	note := ""
	if out.Interrupted() {
		note = string(out.Phase)
	}
	s.recordExec(req.Argv, out.ExitCode, note)
	return out, err
}

func (s *Session) recordExec(argv []string, code int, note string) {
	details := fmt.Sprintf("%s exit=%d", shellquote.Join(argv...), code)
	if note != "" {
		details += " " + note
	}
	s.record(audit.Event{Type: audit.EventExec, Details: details})
}

// Changes returns what a sync would apply: the diff of the isolated root
// against the session baseline, plus synced paths the agent has since
// returned to their baseline state.
func (s *Session) Changes(ctx context.Context) (tracker.ChangeSet, error) {
	if s.handle == nil {
		return nil, sberrors.ValidationError(fmt.Sprintf("session %s has no backend", s.ID))
	}
	changes, err := tracker.Diff(ctx, s.handle.Root, s.baseline, s.matcher)
	if err != nil {
		return nil, sberrors.Wrap(sberrors.KindSyncIO, "failed to compute changes", err)
	}
	return s.ledger.Reverts(changes, s.baseline), nil
}

// SyncNow applies the changes made since the session started to the host.
// Every sync diffs against the original baseline and checks the current
// host state, so repeating a sync never applies a change twice. Conflicts
// and per-file failures are reported in the result; use Result.Err to
// turn an incomplete result into an error.
func (s *Session) SyncNow(ctx context.Context) (*reconcile.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(); err != nil {
		return nil, err
	}

	s.setState(StateSyncing)
	defer s.setState(StateRunning)

	return s.sync(ctx)
}

func (s *Session) sync(ctx context.Context) (*reconcile.Result, error) {
	changes, err := s.Changes(ctx)
	if err != nil {
		s.record(audit.Event{Type: audit.EventError, Details: err.Error()})
		return nil, err
	}

	s.synced = changes
	result := reconcile.Apply(ctx, changes, s.handle.Root, s.paths.ProjectDir,
		reconcile.Options{Force: s.cfg.Force, Ledger: s.ledger})
	if result.Complete() {
		s.dirty = false
	}
	s.ledger.Update(changes, result)
	if s.handle.Kind != backend.KindNone && len(result.Applied) > 0 {
		if err := reconcile.SaveLedger(s.paths.LedgerFile, s.ledger); err != nil {
			logging.Warn("failed to save sync ledger; a later 'vibekit sync' may report false conflicts",
				"session", s.ID, "error", err)
		}
	}
	recordSync(s.record, changes, result)
	return result, nil
}

func recordSync(record func(audit.Event), changes tracker.ChangeSet, result *reconcile.Result) {
	record(audit.Event{
		Type: audit.EventSync,
		Details: fmt.Sprintf("changes=%d applied=%d skipped=%d failed=%d",
			len(changes), len(result.Applied), len(result.Skipped), len(result.Failed)),
		Paths: result.Applied,
	})
	if conflicts := result.Conflicts(); len(conflicts) > 0 {
		record(audit.Event{Type: audit.EventConflict, Details: "host files changed during the session", Paths: conflicts})
	}
	if failed := result.FailedPaths(); len(failed) > 0 {
		record(audit.Event{Type: audit.EventError, Details: "files could not be synced", Paths: failed})
	}
}

// EndSession closes the session. A fresh container is destroyed; a
// persistent one is left running for the next session. The shadow root
// is kept until clean. Calling EndSession on a finished session is a
// no-op.
func (s *Session) EndSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish(ctx, StateClosed, nil)
}

// Abort ends the session in the aborted state.
func (s *Session) Abort(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish(ctx, StateAborted, cause)
}

// finish moves the session to a terminal state. The caller holds s.mu.
func (s *Session) finish(ctx context.Context, final State, cause error) error {
	if s.State().Terminal() {
		return nil
	}
	if final == StateClosed {
		s.setState(StateTerminating)
	}
	defer s.release()

	var errs []error
	if h := s.handle; h != nil {
		if h.Kind == backend.KindDocker && !s.Persistent {
			if err := s.orch.lifecycle.Teardown(ctx, h); err != nil {
				errs = append(errs, err)
			} else {
				s.record(audit.Event{Type: audit.EventTeardown, Details: describeHandle(h)})
			}
		}

		pending := s.dirty && h.Kind != backend.KindNone
		if err := s.saveRecord(final, pending); err != nil {
			errs = append(errs, err)
		}
		if pending {
			logging.Warn("sandbox holds changes that were not synced; run 'vibekit sync' to apply them",
				"session", s.ID, "root", h.Root)
		}
	}

	if final == StateAborted {
		details := "aborted"
		if cause != nil {
			details = cause.Error()
		}
		s.record(audit.Event{Type: audit.EventAbort, Details: details})
	} else {
		s.record(audit.Event{Type: audit.EventSessionEnd})
	}

	s.setState(final)
	return errors.Join(errs...)
}
