// Package logging provides structured logging for the entity manager.
//
// It wraps log/slog so every package logs the same way:
//
//   - JSON output for production, text output for development
//   - service and version fields on every entry
//   - level filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("entity disabled", "entity_id", id)
//
// Never log JWT secrets, password hashes or bearer tokens.
package logging
