// Package logging provides structured logging for the filecloud server.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used throughout the server: connection lifecycle events, message
// dumps at debug level, and plain leveled messages with structured fields.
//
// # Log Levels
//
//   - Debug: Message payload dumps, framing details
//   - Info: Connections accepted and closed, server start/stop
//   - Warn: Protocol errors returned to clients, configuration fallbacks
//   - Error: Bind failures, store write failures
//
// # Structured Logging
//
//	logging.Info("Session closed",
//	    zap.String("remote_addr", "192.168.1.100:50122"),
//	    zap.String("login", "alice"),
//	)
//
// Connection events:
//
//	logging.LogConnection(remoteAddr, "connection_accepted")
//	logging.LogConnection(remoteAddr, "connection_closed", zap.String("login", login))
//
// # Configuration
//
// Initialize logging at startup. An empty level falls back to the
// FILECLOUD_LOG_LEVEL environment variable; when that is empty too the
// logger is silent:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr; stdout belongs to the administrative console.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
