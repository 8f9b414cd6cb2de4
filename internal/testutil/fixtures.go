package testutil

import (
	"embed"
	"encoding/json"

	"github.com/Ramtinhoss/vibekit/internal/config"
)

//go:embed fixtures/*
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadProjectConfigFixture parses a project config fixture on top of the
// defaults. Invalid fixtures return the validation error.
func LoadProjectConfigFixture(name string) (*config.ProjectConfig, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	return config.ParseProjectConfig(data)
}

// LoadSessionRecordFixture loads a session record fixture.
func LoadSessionRecordFixture(name string) (*config.SessionRecord, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var rec config.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ValidProjectConfig returns the valid project config fixture.
func ValidProjectConfig() (*config.ProjectConfig, error) {
	return LoadProjectConfigFixture("valid_project_config.toml")
}

// InvalidProjectConfig returns the error from parsing the invalid project
// config fixture.
func InvalidProjectConfig() error {
	_, err := LoadProjectConfigFixture("invalid_project_config.toml")
	return err
}

// ValidSessionRecord returns the valid session record fixture.
func ValidSessionRecord() (*config.SessionRecord, error) {
	return LoadSessionRecordFixture("valid_session_record.json")
}
