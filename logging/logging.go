// Package logging provides the small leveled logger used across the
// engine. Library code takes a Logger and defaults to Nop, so embedding
// applications stay silent unless they opt in.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// Level represents the logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the interface engine components log through. Fields are
// alternating key/value pairs appended to the message.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// ParseLevel converts a level name to a Level. Unknown names map to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type writerLogger struct {
	level Level
	out   *log.Logger
}

// New creates a logger writing to w at the given threshold.
func New(w io.Writer, level Level) Logger {
	return &writerLogger{
		level: level,
		out:   log.New(w, "", 0),
	}
}

func (l *writerLogger) Debug(msg string, fields ...any) {
	if l.level <= LevelDebug {
		l.log("DEBUG", msg, fields...)
	}
}

func (l *writerLogger) Info(msg string, fields ...any) {
	if l.level <= LevelInfo {
		l.log("INFO", msg, fields...)
	}
}

func (l *writerLogger) Warn(msg string, fields ...any) {
	if l.level <= LevelWarn {
		l.log("WARN", msg, fields...)
	}
}

func (l *writerLogger) Error(msg string, fields ...any) {
	if l.level <= LevelError {
		l.log("ERROR", msg, fields...)
	}
}

func (l *writerLogger) log(level, msg string, fields ...any) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	line := fmt.Sprintf("[%s] %s: %s", timestamp, level, msg)

	if len(fields) > 0 {
		pairs := make([]string, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			pairs = append(pairs, fmt.Sprintf("%v=%v", fields[i], fields[i+1]))
		}
		if len(pairs) > 0 {
			line += " " + strings.Join(pairs, " ")
		}
	}

	l.out.Println(line)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}
