package session

import (
	"time"

	"github.com/Ramtinhoss/vibekit/internal/backend"
	"github.com/Ramtinhoss/vibekit/internal/config"
	sberrors "github.com/Ramtinhoss/vibekit/internal/errors"
	"github.com/Ramtinhoss/vibekit/internal/secrets"
)

// Config describes the session a caller wants.
type Config struct {
	WorkingDirectory string
	Backend          backend.Kind
	Network          backend.Network
	Persistent       bool

	// Force lets syncs overwrite host files that diverged from the
	// baseline. Deletions are never forced.
	Force bool

	Image  string
	CPUs   float64
	Memory int64
	User   string

	ProxyURL string
	Secrets  *secrets.Store

	// Ignore extends the tracker's default ignore set.
	Ignore []string

	GracePeriod    time.Duration
	CommandTimeout time.Duration
}

// FromProject builds a Config from a loaded project configuration.
// Secrets are loaded separately since their values come from the host
// environment.
func FromProject(dir string, pc *config.ProjectConfig) (*Config, error) {
	memory, err := pc.MemoryBytes()
	if err != nil {
		return nil, sberrors.ConfigError("invalid project configuration", err)
	}

	return &Config{
		WorkingDirectory: dir,
		Backend:          backend.Kind(pc.Sandbox.Backend),
		Network:          backend.Network(pc.Sandbox.Network),
		Persistent:       pc.Sandbox.Persistent,
		Image:            pc.Docker.Image,
		CPUs:             pc.Docker.CPUs,
		Memory:           memory,
		User:             pc.Docker.User,
		ProxyURL:         pc.Proxy.URL,
		Ignore:           append([]string{}, pc.Sync.Ignore...),
		GracePeriod:      pc.Sandbox.GracePeriod.Duration,
		CommandTimeout:   pc.Sandbox.CommandTimeout.Duration,
	}, nil
}

// backendConfig returns the backend parameters for the project at p.
func (c *Config) backendConfig(p *config.Paths) *backend.Config {
	return &backend.Config{
		Kind:       c.Backend,
		Name:       config.ResourceName(p.ProjectDir),
		ProjectDir: p.ProjectDir,
		ShadowDir:  p.ShadowDir,
		Network:    c.Network,
		Persistent: c.Persistent,
		Image:      c.Image,
		CPUs:       c.CPUs,
		Memory:     c.Memory,
		User:       c.User,
		ProxyURL:   c.ProxyURL,
		Secrets:    c.Secrets,
	}
}
