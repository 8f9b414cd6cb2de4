package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
)

const (
	DefaultBackend          = "local"
	DefaultNetwork          = "none"
	DefaultImage            = "ubuntu:24.04"
	DefaultProvisionTimeout = 2 * time.Minute
	DefaultGracePeriod      = 10 * time.Second
)

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ProjectConfig represents .vibekit/config.toml
type ProjectConfig struct {
	Sandbox SandboxSection `toml:"sandbox"`
	Docker  DockerSection  `toml:"docker"`
	Sync    SyncSection    `toml:"sync"`
	Secrets SecretsSection `toml:"secrets"`
	Proxy   ProxySection   `toml:"proxy"`
}

type SandboxSection struct {
	Backend          string   `toml:"backend"`
	Network          string   `toml:"network"`
	Persistent       bool     `toml:"persistent"`
	ProvisionTimeout Duration `toml:"provision_timeout"`
	GracePeriod      Duration `toml:"grace_period"`
	CommandTimeout   Duration `toml:"command_timeout"`
}

type DockerSection struct {
	Image  string  `toml:"image"`
	CPUs   float64 `toml:"cpus,omitempty"`
	Memory string  `toml:"memory,omitempty"` // e.g. "2g", "512m"
	User   string  `toml:"user,omitempty"`
}

type SyncSection struct {
	// Ignore extends the built-in ignore set (VCS metadata, dependency
	// caches, the metadata directory).
	Ignore []string `toml:"ignore"`
}

type SecretsSection struct {
	// Env lists host environment variables whose values are injected into
	// the sandbox. Values are never written to disk.
	Env []string `toml:"env"`
}

type ProxySection struct {
	URL string `toml:"url,omitempty"`
}

// DefaultProjectConfig returns the configuration used when no config file exists.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Sandbox: SandboxSection{
			Backend:          DefaultBackend,
			Network:          DefaultNetwork,
			ProvisionTimeout: Duration{DefaultProvisionTimeout},
			GracePeriod:      Duration{DefaultGracePeriod},
		},
		Docker: DockerSection{
			Image: DefaultImage,
		},
	}
}

// Validate checks that the ProjectConfig is valid.
func (c *ProjectConfig) Validate() error {
	validBackends := map[string]bool{"none": true, "local": true, "docker": true}
	if !validBackends[c.Sandbox.Backend] {
		return fmt.Errorf("invalid sandbox.backend: %q (must be none, local, or docker)", c.Sandbox.Backend)
	}

	validNetworks := map[string]bool{"bridge": true, "none": true}
	if !validNetworks[c.Sandbox.Network] {
		return fmt.Errorf("invalid sandbox.network: %q (must be bridge or none)", c.Sandbox.Network)
	}

	if c.Sandbox.ProvisionTimeout.Duration < 0 {
		return fmt.Errorf("sandbox.provision_timeout must not be negative")
	}
	if c.Sandbox.GracePeriod.Duration < 0 {
		return fmt.Errorf("sandbox.grace_period must not be negative")
	}
	if c.Sandbox.CommandTimeout.Duration < 0 {
		return fmt.Errorf("sandbox.command_timeout must not be negative")
	}

	if c.Docker.CPUs < 0 {
		return fmt.Errorf("docker.cpus must not be negative")
	}
	if _, err := c.MemoryBytes(); err != nil {
		return err
	}
	if c.Sandbox.Backend == "docker" && strings.TrimSpace(c.Docker.Image) == "" {
		return fmt.Errorf("docker.image is required for the docker backend")
	}

	for _, name := range c.Secrets.Env {
		if name == "" || strings.ContainsAny(name, "= \t") {
			return fmt.Errorf("invalid secrets.env entry %q", name)
		}
	}

	for _, pattern := range c.Sync.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid sync.ignore pattern %q: %w", pattern, err)
		}
	}

	return nil
}

// MemoryBytes parses docker.memory. Zero means unlimited.
func (c *ProjectConfig) MemoryBytes() (int64, error) {
	raw := strings.TrimSpace(c.Docker.Memory)
	if raw == "" {
		return 0, nil
	}
	v, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid docker.memory %q: %w", raw, err)
	}
	return v, nil
}

// LoadProjectConfig loads the project configuration. A missing file yields
// the defaults; keys absent from the file keep their default values.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}
	return ParseProjectConfig(data)
}

// ParseProjectConfig decodes and validates TOML project configuration on
// top of the defaults.
func ParseProjectConfig(data []byte) (*ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in project config: %v", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project config: %w", err)
	}

	return cfg, nil
}

// SaveProjectConfig writes the configuration as TOML.
func SaveProjectConfig(path string, cfg *ProjectConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create project config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	return nil
}
