package injection

import (
	"context"
)

// Proxy environment variables. Agents built on the Anthropic or OpenAI SDKs
// pick up the base URL variables; VIBEKIT_PROXY_URL is for custom tooling.
const (
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvVibekitProxyURL  = "VIBEKIT_PROXY_URL"
)

// ProxyContributor points agent API traffic at a host-side proxy.
type ProxyContributor struct {
	ProxyURL string
}

// NewProxyContributor creates a new proxy contributor.
func NewProxyContributor(proxyURL string) *ProxyContributor {
	return &ProxyContributor{ProxyURL: proxyURL}
}

// ContributeEnvVars returns proxy environment variables.
func (p *ProxyContributor) ContributeEnvVars(ctx context.Context, req *EnvVarRequest) ([]EnvVar, error) {
	proxyURL := p.ProxyURL

	// Use request values if provided
	if req != nil && req.ProxyURL != "" {
		proxyURL = req.ProxyURL
	}

	if proxyURL == "" {
		return nil, nil
	}

	return []EnvVar{
		{Name: EnvAnthropicBaseURL, Value: proxyURL},
		{Name: EnvOpenAIBaseURL, Value: proxyURL},
		{Name: EnvVibekitProxyURL, Value: proxyURL},
	}, nil
}

// EnvNames returns the variables set when a proxy is configured.
func (p *ProxyContributor) EnvNames() []string {
	if p.ProxyURL == "" {
		return nil
	}
	return []string{EnvAnthropicBaseURL, EnvOpenAIBaseURL, EnvVibekitProxyURL}
}

// Ensure ProxyContributor implements interfaces
var (
	_ EnvVarContributor = (*ProxyContributor)(nil)
	_ EnvNamer          = (*ProxyContributor)(nil)
)
