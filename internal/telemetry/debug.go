package telemetry

import (
	"io"
	"log"

	"github.com/banshee-data/highway.planner/internal/monitoring"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the telemetry
// package. Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = monitoring.NewLogger("[telemetry] ", ops)
	diagLogger = monitoring.NewLogger("[telemetry] ", diag)
	traceLogger = monitoring.NewLogger("[telemetry] ", trace)
}

// opsf logs to the ops stream (malformed frames, dropped connections).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (connections, runs).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (every frame).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
