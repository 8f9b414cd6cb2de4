package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	s, err := Load([]string{"B_TOKEN", "A_KEY"}, lookupFrom(map[string]string{
		"A_KEY":   "alpha",
		"B_TOKEN": "beta",
		"OTHER":   "ignored",
	}))
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, []string{"A_KEY", "B_TOKEN"}, s.Names())
	assert.Equal(t, []string{"A_KEY=alpha", "B_TOKEN=beta"}, s.Env())
	assert.Equal(t, 2, s.Len())
}

func TestLoad_MissingVariable(t *testing.T) {
	_, err := Load([]string{"MISSING"}, lookupFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING")
}

func TestLoad_EmptyValueIsAllowed(t *testing.T) {
	s, err := Load([]string{"EMPTY"}, lookupFrom(map[string]string{"EMPTY": ""}))
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, []string{"EMPTY"}, s.Names())
}

func TestStore_SetReplaces(t *testing.T) {
	s := NewStore()
	defer s.Destroy()

	s.Set("K", "one")
	s.Set("K", "two")

	var got string
	assert.True(t, s.WithValue("K", func(v string) { got = v }))
	assert.Equal(t, "two", got)
	assert.False(t, s.WithValue("absent", func(string) {}))
}

func TestStore_StringHidesValues(t *testing.T) {
	s := NewStore()
	defer s.Destroy()
	s.Set("API_KEY", "sk-very-secret")

	assert.Equal(t, "secrets.Store{API_KEY}", s.String())
	assert.NotContains(t, s.String(), "sk-very-secret")
}

func TestStore_Destroy(t *testing.T) {
	s := NewStore()
	s.Set("K", "v")
	s.Destroy()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Env())
}

func TestStore_EmptyValueInEnv(t *testing.T) {
	s := NewStore()
	defer s.Destroy()
	s.Set("EMPTY", "")

	assert.Equal(t, []string{"EMPTY="}, s.Env())
}
