package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/Ramtinhoss/vibekit/internal/tracker"
)

// Ledger records what earlier syncs of a session wrote to the host: the
// content hash of each file they copied, or "" for a file they removed.
// A host file that still matches its ledger entry was not touched by the
// user, so later changes to it are not conflicts.
type Ledger map[string]string

// Expected returns the host hash a change may safely replace: the last
// synced state when there is one, the baseline otherwise.
func (l Ledger) Expected(change tracker.Change) (hash string, synced bool) {
	if h, ok := l[change.Path]; ok {
		return h, true
	}
	return change.BaselineHash, false
}

// Update records the host state left by the applied entries of result.
func (l Ledger) Update(changes tracker.ChangeSet, result *Result) {
	for _, p := range result.Applied {
		c, ok := changes[p]
		if !ok {
			continue
		}
		if c.Kind == tracker.Deleted {
			l[p] = ""
		} else {
			l[p] = c.Hash
		}
	}
}

// Reverts extends changes with the synced paths that the sandbox has since
// returned to their baseline state. Those no longer appear in a diff
// against the baseline, but the host still holds the synced version.
func (l Ledger) Reverts(changes tracker.ChangeSet, base tracker.Baseline) tracker.ChangeSet {
	out := make(tracker.ChangeSet, len(changes))
	for p, c := range changes {
		out[p] = c
	}

	for p, synced := range l {
		if _, changed := changes[p]; changed {
			continue
		}
		orig, existed := base[p]
		switch {
		case existed && synced != orig:
			out[p] = tracker.Change{Path: p, Kind: tracker.Modified, Hash: orig, BaselineHash: orig}
		case !existed && synced != "":
			out[p] = tracker.Change{Path: p, Kind: tracker.Deleted}
		}
	}
	return out
}

// SaveLedger atomically writes a ledger.
func SaveLedger(path string, l Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal sync ledger: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write sync ledger: %w", err)
	}
	return nil
}

// LoadLedger reads a ledger written by SaveLedger. A missing file is an
// empty ledger.
func LoadLedger(path string) (Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Ledger{}, nil
		}
		return nil, err
	}

	l := Ledger{}
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse sync ledger: %w", err)
	}
	return l, nil
}
