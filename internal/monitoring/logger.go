// Package monitoring holds the process-wide log sinks shared by the outer
// surfaces of the planner (recorder, admin API, decision feed, charts).
// Packages with their own hot paths (planner, telemetry) keep package-local
// streams configured the same way.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var (
	streamsMu   sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger

	streamsConfigured bool
)

// SetLogWriters configures the ops, diag and trace streams. Pass nil for any
// writer to disable that stream. Until this is called Opsf falls back to Logf
// and the other two streams are silent.
func SetLogWriters(ops, diag, trace io.Writer) {
	streamsMu.Lock()
	defer streamsMu.Unlock()
	opsLogger = NewLogger("", ops)
	diagLogger = NewLogger("", diag)
	traceLogger = NewLogger("", trace)
	streamsConfigured = true
}

// NewLogger returns a logger writing to w with the given prefix, or nil when
// w is nil.
func NewLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs actionable warnings, errors and data loss.
func Opsf(format string, args ...interface{}) {
	streamsMu.RLock()
	l, configured := opsLogger, streamsConfigured
	streamsMu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
		return
	}
	if !configured {
		Logf(format, args...)
	}
}

// Diagf logs day-to-day diagnostics and tuning context.
func Diagf(format string, args ...interface{}) {
	streamsMu.RLock()
	l := diagLogger
	streamsMu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs high-frequency per-cycle telemetry.
func Tracef(format string, args ...interface{}) {
	streamsMu.RLock()
	l := traceLogger
	streamsMu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
