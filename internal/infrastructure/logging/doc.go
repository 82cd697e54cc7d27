// Package logging is the log/slog setup shared by the smartobject,
// controller and observer binaries.
//
// Every record carries service and version. Components receive a child
// logger from Component and see it only through their own small Logger
// interface, so they stay testable with a no-op logger.
//
//	logging:
//	  level: info      # debug | info | warn | error
//	  format: json     # json | text
//	  output: stdout   # stdout | stderr
//
// Usage:
//
//	log := logging.New(cfg.Logging, "controller", version)
//	log.Component("monitor").Warn("temperature limit exceeded", "value", v)
//
// Never log broker passwords or InfluxDB tokens.
package logging
