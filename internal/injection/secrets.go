package injection

import (
	"context"

	"github.com/Ramtinhoss/vibekit/internal/secrets"
)

// SecretsContributor forwards values from a secret store as environment
// variables. Values are read from protected memory at collection time.
type SecretsContributor struct {
	Store *secrets.Store
}

// NewSecretsContributor creates a new secrets contributor.
func NewSecretsContributor(store *secrets.Store) *SecretsContributor {
	return &SecretsContributor{Store: store}
}

// ContributeEnvVars returns one variable per stored secret.
func (s *SecretsContributor) ContributeEnvVars(ctx context.Context, req *EnvVarRequest) ([]EnvVar, error) {
	if s.Store == nil {
		return nil, nil
	}

	names := s.Store.Names()
	vars := make([]EnvVar, 0, len(names))
	for _, name := range names {
		s.Store.WithValue(name, func(v string) {
			vars = append(vars, EnvVar{Name: name, Value: v})
		})
	}
	return vars, nil
}

// EnvNames returns the secret names.
func (s *SecretsContributor) EnvNames() []string {
	if s.Store == nil {
		return nil
	}
	return s.Store.Names()
}

// Ensure SecretsContributor implements interfaces
var (
	_ EnvVarContributor = (*SecretsContributor)(nil)
	_ EnvNamer          = (*SecretsContributor)(nil)
)
