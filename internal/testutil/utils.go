package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger for use in a single test. Output moves to
// stderr on cleanup so goroutines outliving the test don't write to a closed
// stdout capture.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[realtime-test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})

	return logger
}
