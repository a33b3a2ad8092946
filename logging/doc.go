// Package logging provides a minimal logging interface and adapters for turnmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the scheduler, drain loop and stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - MeshLogger, slog backed, tagging entries with component and chat
//   - ForComponent and ForChat to tag any Logger
//   - LogInvocation and LogDrainTick dispatch helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	loop := drain.New(locks, queue, func(o *drain.Options) { o.Logger = logger })
//
// Arguments after the message are slog style key/value pairs.
package logging
