package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// syncWithLedger applies the current diff the way a session does on each
// sync and records the outcome in l.
func (f *fixture) syncWithLedger(t *testing.T, l Ledger) *Result {
	t.Helper()
	changes := l.Reverts(f.diff(t), f.baseline)
	result := Apply(context.Background(), changes, f.isolated, f.host, Options{Ledger: l})
	l.Update(changes, result)
	return result
}

func TestApply_SecondSyncOfSameFiles(t *testing.T) {
	f := newFixture(t, map[string]string{"m.txt": "m0", "d.txt": "d0"})
	l := Ledger{}

	write(t, f.isolated, "a.txt", "v1")
	write(t, f.isolated, "m.txt", "m1")
	first := f.syncWithLedger(t, l)
	require.Equal(t, []string{"a.txt", "m.txt"}, first.Applied)

	write(t, f.isolated, "a.txt", "v2")
	write(t, f.isolated, "m.txt", "m2")
	require.NoError(t, os.Remove(filepath.Join(f.isolated, "d.txt")))
	second := f.syncWithLedger(t, l)

	assert.Equal(t, []string{"a.txt", "d.txt", "m.txt"}, second.Applied)
	assert.Empty(t, second.Conflicts())
	assert.Equal(t, "v2", read(t, f.host, "a.txt"))
	assert.Equal(t, "m2", read(t, f.host, "m.txt"))
	assert.NoFileExists(t, filepath.Join(f.host, "d.txt"))
}

func TestApply_HostEditAfterSyncConflicts(t *testing.T) {
	f := newFixture(t, map[string]string{"m.txt": "m0"})
	l := Ledger{}

	write(t, f.isolated, "m.txt", "m1")
	require.True(t, f.syncWithLedger(t, l).Complete())

	write(t, f.host, "m.txt", "host edit")
	write(t, f.isolated, "m.txt", "m2")
	result := f.syncWithLedger(t, l)

	assert.Equal(t, []string{"m.txt"}, result.Conflicts())
	assert.Equal(t, "modified on the host since the last sync", result.Skipped["m.txt"].Detail)
	assert.Equal(t, "host edit", read(t, f.host, "m.txt"))
}

func TestApply_RevertedChangesReachHost(t *testing.T) {
	f := newFixture(t, map[string]string{"m.txt": "m0", "d.txt": "d0"})
	l := Ledger{}

	write(t, f.isolated, "a.txt", "scratch")
	write(t, f.isolated, "m.txt", "m1")
	require.NoError(t, os.Remove(filepath.Join(f.isolated, "d.txt")))
	require.True(t, f.syncWithLedger(t, l).Complete())

	// The agent undoes all three; none of them differs from the baseline.
	require.NoError(t, os.Remove(filepath.Join(f.isolated, "a.txt")))
	write(t, f.isolated, "m.txt", "m0")
	write(t, f.isolated, "d.txt", "d0")
	require.Empty(t, f.diff(t))

	result := f.syncWithLedger(t, l)
	assert.Equal(t, []string{"a.txt", "d.txt", "m.txt"}, result.Applied)
	assert.NoFileExists(t, filepath.Join(f.host, "a.txt"))
	assert.Equal(t, "m0", read(t, f.host, "m.txt"))
	assert.Equal(t, "d0", read(t, f.host, "d.txt"))

	// Once the host is back at the baseline nothing is left to revert.
	assert.Empty(t, l.Reverts(f.diff(t), f.baseline))
}

func TestLedger_Expected(t *testing.T) {
	l := Ledger{"synced.txt": "h1", "removed.txt": ""}

	tests := []struct {
		name       string
		change     tracker.Change
		wantHash   string
		wantSynced bool
	}{
		{"baseline", tracker.Change{Path: "other.txt", BaselineHash: "h0"}, "h0", false},
		{"synced", tracker.Change{Path: "synced.txt", BaselineHash: "h0"}, "h1", true},
		{"synced removal", tracker.Change{Path: "removed.txt", BaselineHash: "h0"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, synced := l.Expected(tt.change)
			assert.Equal(t, tt.wantHash, hash)
			assert.Equal(t, tt.wantSynced, synced)
		})
	}

	var empty Ledger
	hash, synced := empty.Expected(tracker.Change{Path: "x", BaselineHash: "h0"})
	assert.Equal(t, "h0", hash)
	assert.False(t, synced)
}

func TestLoadLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synced.json")

	l, err := LoadLedger(path)
	require.NoError(t, err)
	assert.Empty(t, l)

	require.NoError(t, SaveLedger(path, Ledger{"a.txt": "h1", "b.txt": ""}))
	l, err = LoadLedger(path)
	require.NoError(t, err)
	assert.Equal(t, Ledger{"a.txt": "h1", "b.txt": ""}, l)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadLedger(path)
	assert.Error(t, err)
}
