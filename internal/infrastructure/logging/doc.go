// Package logging provides structured logging for Iroh Core.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering, forced to debug by system.debug_mode
//   - Rotating file output via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/iroh.log"
//	    max_size: 10     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("phone stream connected", "url", wsURL)
//
// Never log the Home Assistant token or MQTT credentials.
package logging
