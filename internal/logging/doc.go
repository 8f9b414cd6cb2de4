// Package logging provides logging utilities for vibekit.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("provisioning backend", "kind", kind, "name", name)
//	logging.Warn("sync skipped file", "path", path, "reason", reason)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Provisioning %s sandbox...", kind)
//	logging.UserSuccess("Synced %d file(s)", n)
//	logging.UserWarning("%s changed on the host, not overwritten", path)
//	logging.UserError("Failed to provision sandbox: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// Tests can redirect both streams with SetOutput.
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
