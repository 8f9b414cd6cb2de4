// Package errors provides typed errors with exit codes for vibekit.
//
// # Error Types
//
// SandboxError is the base error type. It carries a Kind that selects the
// exit code:
//
//	type SandboxError struct {
//	    Kind    Kind   // Error category
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
// Sandbox failures use a reserved range so they never collide with the
// exit status of the agent, which is forwarded unchanged:
//
//	ExitSuccess        = 0
//	ExitGeneralError   = 1
//	ExitLockConflict   = 240 // Another session owns the directory
//	ExitProvisioning   = 241 // Backend could not be made ready
//	ExitTimeout        = 242 // Provisioning or command timed out
//	ExitSyncConflict   = 243 // Host files diverged from the baseline
//	ExitSyncIO         = 244 // A sync failed or was cancelled
//	ExitExecution      = 245 // A command could not be started
//	ExitConfigError    = 246 // Invalid configuration
//	ExitPendingChanges = 247 // Unsynced changes block the operation
//	ExitNotFound       = 248 // No such session
//
// # Error Constructors
//
// Use the provided constructors for consistent error creation:
//
//	errors.LockConflictError(dir, err)
//	errors.SyncConflictError(result.Conflicts())
//	errors.TimeoutError("provision", limit, err)
//	errors.AgentExit(code)
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
