// Package logging provides a minimal logging interface and adapters for agentcore.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, the dispatcher and the model adapters use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and StructuredLogger wrapping Go's structured logging
//   - ZerologAdapter for applications standardized on zerolog
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	a := agent.New("helper", backend, agent.WithLogger(logger))
//
// Event names are dotted and lower-case (agent.run.start, dispatch.batch.complete).
package logging
