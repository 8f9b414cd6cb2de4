// Package app provides the application context for vibekit.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Runtime   runtime.Runtime         // Container runtime, detected lazily
//	    Executor  system.Executor         // Host processes for none/local
//	    Clock     clock.Clock             // Shutdown grace period
//	    LookupEnv secrets.LookupFunc      // Secret values
//	    Recorders session.RecorderFactory // Event log override
//	}
//
// # Creating an App
//
// Use New with functional options:
//
//	// Production usage
//	a := app.New()
//	paths, pc, err := a.Project(dir)
//	cfg, err := a.SessionConfig(paths, pc)
//	report, err := a.Orchestrator(pc).Run(ctx, cfg, req)
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithRuntime(mockRuntime),
//	    app.WithExecutor(mockExecutor),
//	    app.WithClock(fakeClock),
//	)
//
// # Available Options
//
//	WithRuntime(runtime)     // Custom container runtime
//	WithExecutor(executor)   // Custom host process executor
//	WithClock(clock)         // Custom clock
//	WithLookupEnv(lookup)    // Custom secret source
//	WithRecorders(factory)   // Custom event recorder
package app
