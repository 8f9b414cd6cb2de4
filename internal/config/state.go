package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// SessionRecord is the persisted state of the most recent session for a
// project. It outlives the process so that an interrupted sync can be
// completed later and so that status can report on a warm backend.
type SessionRecord struct {
	ID               string `json:"id"`
	WorkingDirectory string `json:"workingDirectory"`
	Backend          string `json:"backend"`
	Network          string `json:"network"`
	Persistent       bool   `json:"persistent"`
	ResourceName     string `json:"resourceName"`
	IsolatedRoot     string `json:"isolatedRoot"`
	ConfigHash       string `json:"configHash,omitempty"`
	CreatedAt        string `json:"createdAt"`
	State            string `json:"state"`
	PID              int    `json:"pid,omitempty"`

	// Pending is set while the isolated root holds changes that have not
	// been fully applied to the host.
	Pending bool `json:"pending,omitempty"`
}

// Validate checks that the SessionRecord is valid.
func (r *SessionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.WorkingDirectory == "" {
		return fmt.Errorf("workingDirectory is required")
	}

	validBackends := map[string]bool{"none": true, "local": true, "docker": true}
	if !validBackends[r.Backend] {
		return fmt.Errorf("invalid backend: %s", r.Backend)
	}

	if r.Backend != "none" && r.IsolatedRoot == "" {
		return fmt.Errorf("isolatedRoot is required for the %s backend", r.Backend)
	}

	return nil
}

// LoadSessionRecord loads the session record for a project.
func LoadSessionRecord(p *Paths) (*SessionRecord, error) {
	data, err := os.ReadFile(p.SessionFile)
	if err != nil {
		return nil, err
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse session record: %w", err)
	}

	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session record: %w", err)
	}

	return &record, nil
}

// SaveSessionRecord atomically saves the session record for a project.
func SaveSessionRecord(p *Paths, record *SessionRecord) error {
	if err := p.EnsureMetaDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := atomic.WriteFile(p.SessionFile, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}

	return nil
}

// DeleteSessionRecord removes the session record for a project.
func DeleteSessionRecord(p *Paths) error {
	if err := os.Remove(p.SessionFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SessionRecordExists checks if a session record exists
func SessionRecordExists(p *Paths) bool {
	_, err := os.Stat(p.SessionFile)
	return err == nil
}
