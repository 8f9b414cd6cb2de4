package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// resourceNameRegex validates backend resource names.
// Names must start with a lowercase letter or digit, followed by lowercase letters, digits, underscores, or hyphens.
// Maximum length is 63 characters (common container name limit).
var resourceNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateResourceName checks if a backend resource name is valid.
// Valid names:
//   - Start with a lowercase letter or digit
//   - Contain only lowercase letters, digits, underscores, or hyphens
//   - Are between 1 and 63 characters long
//   - Do not contain path separators or special characters
func ValidateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("resource name cannot be empty")
	}

	if !resourceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid resource name %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, underscores, or hyphens, and be at most 63 characters", name)
	}

	return nil
}

const (
	MetaDirName      = ".vibekit"
	ConfigFileName   = "config.toml"
	ContainerPrefix  = "vibekit-"
	ContainerWorkdir = "/workspace"
)

// Paths holds the per-project locations used by vibekit. Everything lives
// under the project's metadata directory so a project can be cleaned by
// removing a single directory.
type Paths struct {
	ProjectDir   string
	MetaDir      string
	ConfigFile   string
	SessionFile  string
	BaselineFile string
	LedgerFile   string
	LockFile     string
	ShadowDir    string
	EventsFile   string
}

// NewPaths returns the paths for the project rooted at projectDir. The
// directory is resolved to an absolute, symlink-free path so that two
// spellings of the same directory map to the same session.
func NewPaths(projectDir string) (*Paths, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project directory %s is not a directory", abs)
	}

	meta := filepath.Join(abs, MetaDirName)
	return &Paths{
		ProjectDir:   abs,
		MetaDir:      meta,
		ConfigFile:   filepath.Join(meta, ConfigFileName),
		SessionFile:  filepath.Join(meta, "session.json"),
		BaselineFile: filepath.Join(meta, "baseline.json"),
		LedgerFile:   filepath.Join(meta, "synced.json"),
		LockFile:     filepath.Join(meta, "session.lock"),
		ShadowDir:    filepath.Join(meta, "shadow"),
		EventsFile:   filepath.Join(meta, "events.jsonl"),
	}, nil
}

// EnsureMetaDir creates the metadata directory.
func (p *Paths) EnsureMetaDir() error {
	if err := os.MkdirAll(p.MetaDir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// ResourceName returns the logical backend name for a project: the
// container prefix, a slug of the directory name, and a short hash of the
// absolute path so that same-named projects never share a container.
func ResourceName(projectDir string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(filepath.Base(projectDir)), "-")
	slug = strings.Trim(slug, "-_")
	if slug == "" {
		slug = "project"
	}
	if len(slug) > 32 {
		slug = slug[:32]
	}
	return fmt.Sprintf("%s%s-%08x", ContainerPrefix, slug, uint32(xxhash.Sum64String(projectDir)))
}
