// Package logging provides structured logging for the fowlink daemon and tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns. It provides both general logging functions and helpers for the
// connection manager's recurring events (mode changes, connection attempts,
// portal requests and DNS answers).
//
// # Log Levels
//
//   - Debug: per-request portal and DNS traffic
//   - Info: mode changes, connection attempts and results
//   - Warn: failed attempts, degraded collaborators
//   - Error: startup failures
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("info", ""); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Passing a file path as the second argument writes to a rotated log file
// (lumberjack) instead of stdout, which is what the daemon does on devices
// with a persistent log partition.
//
// When the level is empty the FOWLINK_LOG_LEVEL environment variable is
// consulted; if that is empty too, logging is silent.
package logging
