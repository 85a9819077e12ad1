package types

import "log"

// Logger is a simple logging interface used throughout revwatch
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// StdLogger adapts the standard library log package
type StdLogger struct{}

func (StdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

func (StdLogger) Println(v ...interface{}) {
	log.Println(v...)
}

const (
	// DEFAULT_SCAN_INTERVAL_MIN is the periodic re-scan interval in minutes
	DEFAULT_SCAN_INTERVAL_MIN = 15

	// DEFAULT_BATCH_SIZE is the per-query block range for historical scans
	DEFAULT_BATCH_SIZE = 2000

	// MAX_BATCH_SIZE caps the configurable per-query block range
	MAX_BATCH_SIZE = 10000

	// DEGRADED_LAG_BLOCKS is the scan lag above which health reports degraded
	DEGRADED_LAG_BLOCKS = 100
)
