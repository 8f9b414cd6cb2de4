// Package testutil provides test fixtures and utilities.
//
// # Test Environment
//
// NewTestEnv creates a temporary project directory together with the
// mocks the engine is tested against:
//
//	env := testutil.NewTestEnv(t)
//	env.WriteFile("b.txt", "old")
//	env.Agent(0, func(dir string) {
//	    os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644)
//	})
//
// env.Runtime is a runtime.MockRuntime, env.Executor a system.MockExecutor,
// env.Clock a clock.FakeClock and env.Recorder an in-memory event
// recorder.
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_project_config.toml
//	fixtures/invalid_project_config.toml
//	fixtures/valid_session_record.json
//
// Helper functions load and parse them:
//
//	cfg, err := testutil.ValidProjectConfig()
//	rec, err := testutil.ValidSessionRecord()
//	err := testutil.InvalidProjectConfig()
//
// For custom parsing or testing edge cases:
//
//	data, err := testutil.LoadFixture("valid_session_record.json")
package testutil
