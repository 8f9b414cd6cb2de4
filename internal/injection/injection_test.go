package injection

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Ramtinhoss/vibekit/internal/secrets"
)

func TestWorkspaceMountContributor(t *testing.T) {
	contrib := NewWorkspaceMountContributor()

	result, err := contrib.ContributeMounts(context.Background(), &MountRequest{
		IsolatedRoot: "/src/proj/.vibekit/shadow",
		Workdir:      "/workspace",
	})
	if err != nil {
		t.Fatalf("ContributeMounts() failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d mounts, want 1", len(result))
	}
	if result[0].HostPath != "/src/proj/.vibekit/shadow" || result[0].ContainerPath != "/workspace" {
		t.Errorf("unexpected mount: %+v", result[0])
	}
	if result[0].ReadOnly {
		t.Error("workspace mount must be writable")
	}
}

func TestWorkspaceMountContributor_Empty(t *testing.T) {
	contrib := NewWorkspaceMountContributor()
	result, err := contrib.ContributeMounts(context.Background(), &MountRequest{})
	if err != nil {
		t.Fatalf("ContributeMounts() failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("got %d mounts, want 0", len(result))
	}
}

func TestProxyContributor(t *testing.T) {
	contrib := NewProxyContributor("http://host.docker.internal:8080")

	vars, err := contrib.ContributeEnvVars(context.Background(), nil)
	if err != nil {
		t.Fatalf("ContributeEnvVars() failed: %v", err)
	}

	want := []EnvVar{
		{Name: EnvAnthropicBaseURL, Value: "http://host.docker.internal:8080"},
		{Name: EnvOpenAIBaseURL, Value: "http://host.docker.internal:8080"},
		{Name: EnvVibekitProxyURL, Value: "http://host.docker.internal:8080"},
	}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("ContributeEnvVars() = %v, want %v", vars, want)
	}
}

func TestProxyContributor_RequestOverrides(t *testing.T) {
	contrib := NewProxyContributor("http://a")
	vars, _ := contrib.ContributeEnvVars(context.Background(), &EnvVarRequest{ProxyURL: "http://b"})
	if vars[0].Value != "http://b" {
		t.Errorf("value = %q, want request URL", vars[0].Value)
	}
}

func TestProxyContributor_Disabled(t *testing.T) {
	contrib := NewProxyContributor("")
	vars, err := contrib.ContributeEnvVars(context.Background(), &EnvVarRequest{})
	if err != nil || vars != nil {
		t.Errorf("ContributeEnvVars() = %v, %v, want nil, nil", vars, err)
	}
	if contrib.EnvNames() != nil {
		t.Error("EnvNames() should be empty without a proxy")
	}
}

func TestSecretsContributor(t *testing.T) {
	store := secrets.NewStore()
	defer store.Destroy()
	store.Set("GH_TOKEN", "ghp_x")

	contrib := NewSecretsContributor(store)
	vars, err := contrib.ContributeEnvVars(context.Background(), nil)
	if err != nil {
		t.Fatalf("ContributeEnvVars() failed: %v", err)
	}
	if len(vars) != 1 || vars[0].String() != "GH_TOKEN=ghp_x" {
		t.Errorf("ContributeEnvVars() = %v", vars)
	}
}

type failingContributor struct{}

func (failingContributor) ContributeMounts(context.Context, *MountRequest) ([]Mount, error) {
	return nil, errors.New("boom")
}

type envContributor []EnvVar

func (e envContributor) ContributeEnvVars(context.Context, *EnvVarRequest) ([]EnvVar, error) {
	return e, nil
}

func TestCollector_Collect(t *testing.T) {
	store := secrets.NewStore()
	defer store.Destroy()
	store.Set("ANTHROPIC_API_KEY", "sk")

	sources := CollectionSources{
		Contributors: []any{
			NewWorkspaceMountContributor(),
			envContributor{{Name: EnvAnthropicBaseURL, Value: "http://old"}},
			NewProxyContributor("http://proxy"),
			NewSecretsContributor(store),
			"not a contributor",
		},
		MountRequest:  &MountRequest{IsolatedRoot: "/shadow", Workdir: "/workspace"},
		EnvVarRequest: &EnvVarRequest{},
	}

	result, err := NewCollector().Collect(context.Background(), sources)
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if got := result.BindMounts(); !reflect.DeepEqual(got, map[string]string{"/shadow": "/workspace"}) {
		t.Errorf("BindMounts() = %v", got)
	}

	wantEnv := []string{
		"ANTHROPIC_BASE_URL=http://proxy",
		"OPENAI_BASE_URL=http://proxy",
		"VIBEKIT_PROXY_URL=http://proxy",
		"ANTHROPIC_API_KEY=sk",
	}
	if got := result.Env(); !reflect.DeepEqual(got, wantEnv) {
		t.Errorf("Env() = %v, want %v", got, wantEnv)
	}
}

func TestCollector_PropagatesErrors(t *testing.T) {
	_, err := NewCollector().Collect(context.Background(), CollectionSources{
		Contributors: []any{failingContributor{}},
	})
	if err == nil {
		t.Error("Collect() should fail when a contributor fails")
	}
}

func TestEnvNames(t *testing.T) {
	store := secrets.NewStore()
	defer store.Destroy()
	store.Set("Z_KEY", "z")

	names := EnvNames([]any{NewProxyContributor("http://p"), NewSecretsContributor(store), NewWorkspaceMountContributor()})
	want := []string{EnvAnthropicBaseURL, EnvOpenAIBaseURL, EnvVibekitProxyURL, "Z_KEY"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("EnvNames() = %v, want %v", names, want)
	}
}
