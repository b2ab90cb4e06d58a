// Package xlog wires the engine's ambient logging concern to
// go.uber.org/zap, grounded on aras-group-co-aras-auth's pattern of an
// injected *zap.Logger used at call sites that net/http-style servers
// would otherwise reach for a bare *log.Logger (the teacher's srv.logf in
// types_server.go). Nothing here is on the spec's critical path; engines
// accept a *zap.Logger (or nil, via NewNop) and log structured fields at
// the sites spec §7's error taxonomy calls for a log line.
package xlog

import "go.uber.org/zap"

// New builds a production zap.Logger suitable for a server process: JSON
// encoding, zap's production timestamp encoding (epoch seconds), and stack
// traces disabled at every level.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// NewNop returns a logger that discards everything, used by tests and by
// callers that don't want the engine's best-effort logging.
func NewNop() *zap.Logger { return zap.NewNop() }

// Ignored logs a debug line for information the engine's error taxonomy
// marks Ignored (spec §7): discarded on purpose, never surfaced.
func Ignored(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

// Protocol logs a warning for a Protocol-kind error: malformed wire input
// that gets a best-effort error response before the connection closes.
func Protocol(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	log.Warn(msg, append(fields, zap.Error(err))...)
}

// ServiceErr logs an error-kind line for an uncaught application Service
// error that the engine defaulted to a 500.
func ServiceErr(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	log.Error(msg, append(fields, zap.Error(err))...)
}
