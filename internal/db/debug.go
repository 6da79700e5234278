package db

import (
	"io"
	"log"

	"github.com/banshee-data/highway.planner/internal/monitoring"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the db package streams. The recorder has no
// per-cycle output so the trace writer is accepted and ignored.
func SetLogWriters(ops, diag, _ io.Writer) {
	opsLogger = monitoring.NewLogger("[db] ", ops)
	diagLogger = monitoring.NewLogger("[db] ", diag)
}

// opsf logs failed writes and backup problems. Until SetLogWriters is called
// it goes to the shared monitoring ops stream.
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
		return
	}
	monitoring.Opsf("[db] "+format, args...)
}

// diagf logs migrations and run lifecycle.
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
