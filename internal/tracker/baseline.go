package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

type baselineFile struct {
	Version int      `json:"version"`
	Ignore  []string `json:"ignore"`
	Files   Baseline `json:"files"`
}

// SaveBaseline atomically writes a baseline and the ignore patterns it was
// taken with.
func SaveBaseline(path string, base Baseline, m *Matcher) error {
	data, err := json.Marshal(baselineFile{Version: 1, Ignore: m.Patterns(), Files: base})
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	return nil
}

// LoadBaseline reads a baseline written by SaveBaseline together with a
// Matcher equivalent to the one it was taken with.
func LoadBaseline(path string) (Baseline, *Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var f baselineFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse baseline: %w", err)
	}
	if f.Version != 1 {
		return nil, nil, fmt.Errorf("unsupported baseline version %d", f.Version)
	}
	if f.Files == nil {
		f.Files = Baseline{}
	}

	return f.Files, compile(f.Ignore), nil
}
