// Package config provides configuration types and loading for vibekit.
//
// # Configuration Files
//
// All state for a project lives in its metadata directory, .vibekit/:
//
//   - config.toml: project settings (ProjectConfig)
//   - session.json: the most recent session (SessionRecord)
//   - baseline.json: the content-hash baseline of that session
//   - session.lock: the advisory lock held by a live session
//   - shadow/: the isolated root used by the local and docker backends
//   - events.jsonl: the audit trail
//
// # Project Configuration
//
//	[sandbox]
//	backend = "docker"          # none, local, or docker
//	network = "none"            # bridge or none
//	persistent = true           # keep the container warm between sessions
//	provision_timeout = "2m"
//	grace_period = "10s"
//
//	[docker]
//	image = "ubuntu:24.04"
//	cpus = 2.0
//	memory = "4g"
//
//	[sync]
//	ignore = ["dist", "*.log"]
//
//	[secrets]
//	env = ["ANTHROPIC_API_KEY"]
//
//	[proxy]
//	url = "http://127.0.0.1:8080"
//
// # Validation
//
// ProjectConfig and SessionRecord implement Validate() to check for required
// fields and valid values. Loading functions automatically validate after parsing.
package config
