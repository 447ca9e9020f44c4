// Package logging provides structured logging utilities for powerlab components.
//
// # Overview
//
// This package wraps the standard library slog package with powerlab defaults
// and conventions for consistent logging across all components. It supports
// environment-based log level configuration, module/version context injection,
// and automatic source location tracking for debug logs.
//
// # Features
//
//   - Structured JSON logging to stderr
//   - Environment-based log level configuration (LOG_LEVEL)
//   - Automatic module and version context
//   - Source location tracking for debug logs
//   - Flexible log level parsing
//   - Integration with standard library log package
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
// Setting the default logger (recommended):
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("powerlabd", "v1.0.0")
//	    defer slog.Info("application started")
//
//	    // Use slog as normal
//	    slog.Info("job started", "job", jobID)
//	    slog.Debug("device log", "line", line)
//	    slog.Error("operation failed", "error", err)
//	}
//
// Creating a custom logger:
//
//	logger := logging.NewStructuredLogger("powerlabd", "v2.0.0", "debug")
//	logger.Info("server starting", "port", 8000)
//
// Setting explicit log level:
//
//	logging.SetDefaultStructuredLoggerWithLevel("powerlab", "v1.0.0", "warn")
//
// Converting standard library logger:
//
//	stdLogger := logging.NewLogLogger(slog.LevelInfo, false)
//	stdLogger.Println("legacy log message")
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity:
//
//	LOG_LEVEL=debug powerlab run --config nodes.yaml
//	LOG_LEVEL=error powerlabd
//
// If LOG_LEVEL is not set, defaults to INFO level.
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "server started",
//	    "module": "powerlabd",
//	    "version": "v1.0.0",
//	    "port": 8000
//	}
//
// Debug logs include source location:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "DEBUG",
//	    "source": {
//	        "function": "agent.(*Agent).Start",
//	        "file": "agent.go",
//	        "line": 45
//	    },
//	    "msg": "job started",
//	    "module": "powerlabd",
//	    "version": "v1.0.0"
//	}
//
// # Best Practices
//
// 1. Set default logger early in main():
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("myapp", version)
//	    defer slog.Info("application started")
//	    // ...
//	}
//
// 2. Include context in log messages:
//
//	slog.Info("request processed",
//	    "method", "GET",
//	    "path", "/jobs",
//	    "duration_ms", 125,
//	)
//
// 3. Use appropriate log levels:
//
//	slog.Debug("serial line", "line", l)  // Development/troubleshooting
//	slog.Info("server started")          // Normal operations
//	slog.Warn("dial retry", "attempt", 3) // Potential issues
//	slog.Error("flash failed")           // Errors requiring action
//
// 4. Log errors with context:
//
//	slog.Error("failed to process request",
//	    "error", err,
//	    "node", node.Name,
//	    "job", jobID,
//	)
//
// # Integration
//
// This package is used by:
//   - pkg/api - node agent daemon logging
//   - pkg/cli - controller command logging
//   - pkg/agent - job lifecycle logging
//   - pkg/pipeline - device line echo and pipeline errors
//   - pkg/fleet - run progress logging
//
// All components share consistent logging format and configuration.
package logging
