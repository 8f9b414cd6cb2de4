package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Exit codes for vibekit. The agent's own exit status is forwarded
// unchanged, so failures of the sandbox layer itself use a reserved
// range that agents are unlikely to produce.
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitLockConflict   = 240
	ExitProvisioning   = 241
	ExitTimeout        = 242
	ExitSyncConflict   = 243
	ExitSyncIO         = 244
	ExitExecution      = 245
	ExitConfigError    = 246
	ExitPendingChanges = 247
	ExitNotFound       = 248
)

// Kind classifies a SandboxError.
type Kind string

const (
	KindGeneral        Kind = "general"
	KindProvisioning   Kind = "provisioning"
	KindExecution      Kind = "execution"
	KindSyncConflict   Kind = "sync-conflict"
	KindSyncIO         Kind = "sync-io"
	KindLockConflict   Kind = "lock-conflict"
	KindTimeout        Kind = "timeout"
	KindConfig         Kind = "config"
	KindPendingChanges Kind = "pending-changes"
	KindNotFound       Kind = "not-found"
	KindAgentExit      Kind = "agent-exit"
)

var kindCodes = map[Kind]int{
	KindGeneral:        ExitGeneralError,
	KindProvisioning:   ExitProvisioning,
	KindExecution:      ExitExecution,
	KindSyncConflict:   ExitSyncConflict,
	KindSyncIO:         ExitSyncIO,
	KindLockConflict:   ExitLockConflict,
	KindTimeout:        ExitTimeout,
	KindConfig:         ExitConfigError,
	KindPendingChanges: ExitPendingChanges,
	KindNotFound:       ExitNotFound,
}

// SandboxError is the base error type for vibekit
type SandboxError struct {
	Kind    Kind
	Code    int
	Message string
	Cause   error
}

func (e *SandboxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SandboxError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *SandboxError) ExitCode() int {
	return e.Code
}

// New creates a new SandboxError of the given kind
func New(kind Kind, message string) *SandboxError {
	return &SandboxError{
		Kind:    kind,
		Code:    codeFor(kind),
		Message: message,
	}
}

// Wrap wraps an existing error with a SandboxError
func Wrap(kind Kind, message string, cause error) *SandboxError {
	return &SandboxError{
		Kind:    kind,
		Code:    codeFor(kind),
		Message: message,
		Cause:   cause,
	}
}

func codeFor(kind Kind) int {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return ExitGeneralError
}

// Common error constructors

// ProvisioningError returns an error for a backend that could not be created or started.
func ProvisioningError(message string, cause error) *SandboxError {
	return Wrap(KindProvisioning, message, cause)
}

// ExecutionError returns an error for a command that could not be run.
func ExecutionError(message string, cause error) *SandboxError {
	return Wrap(KindExecution, message, cause)
}

// SyncConflictError returns an error listing host files that diverged from the baseline.
func SyncConflictError(paths []string) *SandboxError {
	return New(KindSyncConflict, fmt.Sprintf("%d file(s) changed on the host during the session: %s",
		len(paths), summarize(paths)))
}

// SyncIOError returns an error for files that could not be applied to the host.
func SyncIOError(paths []string, cause error) *SandboxError {
	return Wrap(KindSyncIO, fmt.Sprintf("failed to sync %d file(s): %s", len(paths), summarize(paths)), cause)
}

// LockConflictError returns an error when another session owns the working directory.
func LockConflictError(dir string, cause error) *SandboxError {
	return Wrap(KindLockConflict, fmt.Sprintf("a session is already active for %s", dir), cause)
}

// TimeoutError returns an error for an operation that exceeded its bound.
func TimeoutError(op string, limit time.Duration, cause error) *SandboxError {
	return Wrap(KindTimeout, fmt.Sprintf("%s timed out after %s", op, limit), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *SandboxError {
	return Wrap(KindConfig, message, cause)
}

// PendingChangesError returns an error when a previous session left unsynced changes.
func PendingChangesError(dir string) *SandboxError {
	return New(KindPendingChanges,
		fmt.Sprintf("%s has unsynced changes from a previous session; run 'vibekit sync' or 'vibekit clean'", dir))
}

// NotFound returns an error for a missing resource
func NotFound(what string) *SandboxError {
	return New(KindNotFound, fmt.Sprintf("%s not found", what))
}

// AgentExit carries a non-zero agent exit status through to the process exit code.
func AgentExit(code int) *SandboxError {
	return &SandboxError{
		Kind:    KindAgentExit,
		Code:    code,
		Message: fmt.Sprintf("agent exited with status %d", code),
	}
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *SandboxError {
	return New(KindGeneral, message)
}

func summarize(paths []string) string {
	const max = 5
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(paths[:max], ", "), len(paths)-max)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var sandboxErr *SandboxError
	if errors.As(err, &sandboxErr) {
		return sandboxErr.ExitCode()
	}
	return ExitGeneralError
}

// KindOf returns the kind of the first SandboxError in err's chain.
func KindOf(err error) Kind {
	var sandboxErr *SandboxError
	if errors.As(err, &sandboxErr) {
		return sandboxErr.Kind
	}
	return KindGeneral
}

// IsKind reports whether err's chain contains a SandboxError of the given kind.
func IsKind(err error, kind Kind) bool {
	var sandboxErr *SandboxError
	if errors.As(err, &sandboxErr) {
		return sandboxErr.Kind == kind
	}
	return false
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
