package injection

import (
	"context"
	"sort"
)

// Collector gathers contributions from various sources.
type Collector struct{}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Contributions is the aggregated result from all contributors.
type Contributions struct {
	Mounts  []Mount
	EnvVars []EnvVar
}

// Env renders the environment variables as KEY=VALUE entries.
func (c *Contributions) Env() []string {
	env := make([]string, 0, len(c.EnvVars))
	for _, v := range c.EnvVars {
		env = append(env, v.String())
	}
	return env
}

// BindMounts returns the mounts as a host path to container path map.
func (c *Contributions) BindMounts() map[string]string {
	binds := make(map[string]string, len(c.Mounts))
	for _, m := range c.Mounts {
		binds[m.HostPath] = m.ContainerPath
	}
	return binds
}

// CollectionSources holds all the sources that might contribute.
type CollectionSources struct {
	// Contributors is the list of all potential contributors.
	// Each will be checked via interface assertions.
	Contributors []any

	// Request contexts for different contribution types
	MountRequest  *MountRequest
	EnvVarRequest *EnvVarRequest
}

// Collect queries all sources for their contributions. When two sources
// set the same variable the later one wins.
func (c *Collector) Collect(ctx context.Context, sources CollectionSources) (*Contributions, error) {
	result := &Contributions{}

	for _, src := range sources.Contributors {
		// Mounts
		if mc, ok := src.(MountContributor); ok {
			mounts, err := mc.ContributeMounts(ctx, sources.MountRequest)
			if err != nil {
				return nil, err
			}
			result.Mounts = append(result.Mounts, mounts...)
		}

		// Environment variables
		if ec, ok := src.(EnvVarContributor); ok {
			envVars, err := ec.ContributeEnvVars(ctx, sources.EnvVarRequest)
			if err != nil {
				return nil, err
			}
			result.EnvVars = append(result.EnvVars, envVars...)
		}
	}

	result.EnvVars = dedupeEnv(result.EnvVars)
	return result, nil
}

// EnvNames lists the variable names the sources will contribute, sorted
// and without values.
func EnvNames(contributors []any) []string {
	seen := make(map[string]bool)
	for _, src := range contributors {
		if n, ok := src.(EnvNamer); ok {
			for _, name := range n.EnvNames() {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dedupeEnv keeps the last value for each name, at the position of its
// first occurrence.
func dedupeEnv(vars []EnvVar) []EnvVar {
	index := make(map[string]int)
	result := make([]EnvVar, 0, len(vars))
	for _, v := range vars {
		if i, ok := index[v.Name]; ok {
			result[i] = v
			continue
		}
		index[v.Name] = len(result)
		result = append(result, v)
	}
	return result
}
