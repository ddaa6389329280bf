// Package logging provides structured logging for PetCare Core.
//
// It wraps the standard log/slog package so every component logs with the
// same shape: JSON in production, text during development, and the default
// fields service and version on every entry.
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	hubLog := logger.Component("realtime")
//	hubLog.Info("client connected", "conn_id", id)
//
// Never log secrets such as MongoDB URIs with embedded credentials, MQTT
// passwords or InfluxDB tokens. Use RedactURI for connection strings.
package logging
