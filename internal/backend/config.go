package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Ramtinhoss/vibekit/internal/config"
	"github.com/Ramtinhoss/vibekit/internal/injection"
	"github.com/Ramtinhoss/vibekit/internal/secrets"
)

// Container labels written by the docker backend
const (
	LabelProject    = "io.vibekit.project"
	LabelConfigHash = "io.vibekit.config-hash"
)

// Config describes the backend a session wants.
type Config struct {
	Kind       Kind
	Name       string // logical resource name, stable per project
	ProjectDir string
	ShadowDir  string
	Network    Network
	Persistent bool

	Image  string
	CPUs   float64
	Memory int64 // bytes
	User   string

	ProxyURL string
	Secrets  *secrets.Store
}

// Validate checks that the Config is usable.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindNone, KindLocal, KindDocker:
	default:
		return fmt.Errorf("invalid backend: %q", c.Kind)
	}

	switch c.Network {
	case NetworkBridge, NetworkNone:
	default:
		return fmt.Errorf("invalid network policy: %q", c.Network)
	}

	if c.ProjectDir == "" {
		return fmt.Errorf("project directory is required")
	}
	if c.Kind != KindNone && c.ShadowDir == "" {
		return fmt.Errorf("shadow directory is required for the %s backend", c.Kind)
	}
	if c.Kind == KindDocker {
		if err := config.ValidateResourceName(c.Name); err != nil {
			return err
		}
		if strings.TrimSpace(c.Image) == "" {
			return fmt.Errorf("image is required for the docker backend")
		}
	}
	return nil
}

// contributors returns the injection sources for this configuration.
func (c *Config) contributors() []any {
	return []any{
		injection.NewWorkspaceMountContributor(),
		injection.NewProxyContributor(c.ProxyURL),
		injection.NewSecretsContributor(c.Secrets),
	}
}

// Hash returns a stable digest of the parameters that require a new
// container when they change. Secret values are excluded; only their
// names contribute.
func (c *Config) Hash() string {
	envNames := injection.EnvNames(c.contributors())
	sort.Strings(envNames)

	h := xxhash.New()
	fmt.Fprintf(h, "kind=%s\x00", c.Kind)
	fmt.Fprintf(h, "cpus=%g\x00", c.CPUs)
	fmt.Fprintf(h, "memory=%d\x00", c.Memory)
	fmt.Fprintf(h, "network=%s\x00", c.Network)
	fmt.Fprintf(h, "image=%s\x00", c.Image)
	fmt.Fprintf(h, "user=%s\x00", c.User)
	fmt.Fprintf(h, "env=%s\x00", strings.Join(envNames, ","))
	fmt.Fprintf(h, "proxy=%s\x00", c.ProxyURL)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Handle returns an unprovisioned handle naming cfg's resource, suitable
// for Stop and Teardown of a resource left by an earlier process.
func (c *Config) Handle() *Handle {
	h := &Handle{
		Kind:       c.Kind,
		Name:       c.Name,
		Root:       c.ShadowDir,
		Workdir:    c.ShadowDir,
		ConfigHash: c.Hash(),
	}
	switch c.Kind {
	case KindNone:
		h.Root = c.ProjectDir
		h.Workdir = c.ProjectDir
	case KindDocker:
		h.Workdir = config.ContainerWorkdir
	}
	return h
}
