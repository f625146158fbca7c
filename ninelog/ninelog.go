// Package ninelog is a small multi-sink leveled logger, adapted from
// the minilog package: any number of named sinks (io.Writers) can be
// registered, each with its own level filter, and every log call fans
// out to all of them.
package ninelog

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Logger is the minimal logging surface client and srv depend on, so
// callers can plug in ninelog itself, a test double, or Discard.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type sink struct {
	level  Level
	w      io.Writer
	logger *log.Logger
}

var (
	mu      sync.RWMutex
	sinks   = map[string]*sink{}
)

// AddLogger registers a named sink writing to w, filtered at level.
// Re-adding an existing name replaces it.
func AddLogger(name string, w io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()
	sinks[name] = &sink{level: level, w: w, logger: log.New(w, "", 0)}
}

// DelLogger removes a named sink.
func DelLogger(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(sinks, name)
}

func fanout(level Level, tag string, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s %s %s %s", time.Now().Format(time.RFC3339Nano), tag, "ninelog", msg)
	for _, s := range sinks {
		if level >= s.level {
			s.logger.Println(line)
		}
	}
}

func Debugf(format string, args ...interface{}) { fanout(DEBUG, "DEBUG", format, args...) }
func Infof(format string, args ...interface{})  { fanout(INFO, "INFO", format, args...) }
func Warnf(format string, args ...interface{})  { fanout(WARN, "WARN", format, args...) }
func Errorf(format string, args ...interface{}) { fanout(ERROR, "ERROR", format, args...) }
func Fatalf(format string, args ...interface{}) { fanout(FATAL, "FATAL", format, args...) }

// Default is the package-level Logger, fanning out to every sink
// registered via AddLogger.
var Default Logger = defaultLogger{}

type defaultLogger struct{}

func (defaultLogger) Debugf(format string, args ...interface{}) { Debugf(format, args...) }
func (defaultLogger) Infof(format string, args ...interface{})  { Infof(format, args...) }
func (defaultLogger) Warnf(format string, args ...interface{})  { Warnf(format, args...) }
func (defaultLogger) Errorf(format string, args ...interface{}) { Errorf(format, args...) }

// Discard is a Logger that drops everything; it is the zero-config
// default for client.Connection and srv.Server so the library has no
// ambient side effects unless a caller opts in via WithLogger.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debugf(string, ...interface{}) {}
func (discardLogger) Infof(string, ...interface{})  {}
func (discardLogger) Warnf(string, ...interface{})  {}
func (discardLogger) Errorf(string, ...interface{}) {}
