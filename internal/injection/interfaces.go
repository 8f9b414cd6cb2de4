package injection

import (
	"context"
)

// MountContributor can contribute filesystem mounts to a container.
type MountContributor interface {
	ContributeMounts(ctx context.Context, req *MountRequest) ([]Mount, error)
}

// EnvVarContributor can contribute environment variables to the sandbox.
type EnvVarContributor interface {
	ContributeEnvVars(ctx context.Context, req *EnvVarRequest) ([]EnvVar, error)
}

// EnvNamer is implemented by contributors whose variable names, but not
// values, are known before collection. Names feed the configuration hash.
type EnvNamer interface {
	EnvNames() []string
}
