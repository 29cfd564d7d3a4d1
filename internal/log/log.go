// Package log is the agent-wide structured logger, a thin facade over logrus.
package log

import (
	"io"
	"os"
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
)

// GetLogger returns the global logger. Before Init it is an info-level stdout
// logger, so library packages can log unconditionally.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newLogrusAdapter(Config{Level: "info"}, os.Stdout)
	}
	return logger
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	out := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Enabled {
		if _, err := out.AddFileAppender(cfg.File); err != nil {
			return err
		}
	}
	SetOutput(cfg, out)
	return nil
}

// SetOutput installs a logger writing to w only.
func SetOutput(cfg Config, w io.Writer) {
	l := newLogrusAdapter(cfg, w)
	mu.Lock()
	logger = l
	mu.Unlock()
}
