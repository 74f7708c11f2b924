package dkim

import (
	"fmt"
	"io"
	"log"
)

// Level selects the minimum severity a Logger emits.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger is the leveled logging interface consumed by the Verifier and the
// default PublicKeyResolver. It lets a caller observe per-signature
// diagnostics (which header failed, which DNS query ran) without the
// library committing to a specific logging library.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

type stdLogger struct {
	level Level
	err   *log.Logger
	warn  *log.Logger
	info  *log.Logger
	debug *log.Logger
}

// NewLogger returns a Logger that writes to w, prefixed by severity, and
// discards messages below l.
func NewLogger(w io.Writer, l Level) Logger {
	flags := log.Lmsgprefix | log.LstdFlags
	return &stdLogger{
		level: l,
		err:   log.New(w, "ERROR: ", flags),
		warn:  log.New(w, " WARN: ", flags),
		info:  log.New(w, " INFO: ", flags),
		debug: log.New(w, "DEBUG: ", flags),
	}
}

func (l *stdLogger) Debug(v ...interface{}) {
	if l.level >= LevelDebug {
		_ = l.debug.Output(2, fmt.Sprint(v...))
	}
}

func (l *stdLogger) Debugf(format string, v ...interface{}) {
	if l.level >= LevelDebug {
		_ = l.debug.Output(2, fmt.Sprintf(format, v...))
	}
}

func (l *stdLogger) Info(v ...interface{}) {
	if l.level >= LevelInfo {
		_ = l.info.Output(2, fmt.Sprint(v...))
	}
}

func (l *stdLogger) Infof(format string, v ...interface{}) {
	if l.level >= LevelInfo {
		_ = l.info.Output(2, fmt.Sprintf(format, v...))
	}
}

func (l *stdLogger) Warn(v ...interface{}) {
	if l.level >= LevelWarn {
		_ = l.warn.Output(2, fmt.Sprint(v...))
	}
}

func (l *stdLogger) Warnf(format string, v ...interface{}) {
	if l.level >= LevelWarn {
		_ = l.warn.Output(2, fmt.Sprintf(format, v...))
	}
}

func (l *stdLogger) Error(v ...interface{}) {
	if l.level >= LevelError {
		_ = l.err.Output(2, fmt.Sprint(v...))
	}
}

func (l *stdLogger) Errorf(format string, v ...interface{}) {
	if l.level >= LevelError {
		_ = l.err.Output(2, fmt.Sprintf(format, v...))
	}
}

type discardLogger struct{}

func (discardLogger) Debug(v ...interface{})                 {}
func (discardLogger) Debugf(format string, v ...interface{}) {}
func (discardLogger) Info(v ...interface{})                  {}
func (discardLogger) Infof(format string, v ...interface{})  {}
func (discardLogger) Warn(v ...interface{})                  {}
func (discardLogger) Warnf(format string, v ...interface{})  {}
func (discardLogger) Error(v ...interface{})                 {}
func (discardLogger) Errorf(format string, v ...interface{}) {}

// Discard is a Logger that drops every message.
var Discard Logger = discardLogger{}

func loggerOrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}
