package feed

import (
	"io"
	"log"

	"github.com/banshee-data/highway.planner/internal/monitoring"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the logging streams for the feed package. The
// trace stream is unused. Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, _ io.Writer) {
	opsLogger = monitoring.NewLogger("[feed] ", ops)
	diagLogger = monitoring.NewLogger("[feed] ", diag)
}

// opsf logs to the ops stream (rejected subscribers, server errors).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
		return
	}
	monitoring.Opsf("[feed] "+format, args...)
}

// diagf logs to the diag stream (subscriber lifecycle, periodic stats).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
