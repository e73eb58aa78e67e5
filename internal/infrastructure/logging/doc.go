// Package logging provides structured logging for plantcare.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version). Components add their own
// "component" attribute via Component.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets such as the notifier auth key or JWT secret.
package logging
