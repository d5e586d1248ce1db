package goxl

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the standard logger. When cfg.LogFile is set the
// output is also written to a rotated log file. The returned func flushes and
// closes that file.
func SetupLogging(cfg *Config) func() error {
	log.SetFlags(log.Lshortfile | log.LstdFlags)
	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj.Close
}

// LogEvent writes e to the standard logger. Debug events are only written
// when debug is set.
func LogEvent(e Event, debug bool) {
	if e.Type == EventTypeDebug && !debug {
		return
	}
	log.Output(2, e.String())
}
