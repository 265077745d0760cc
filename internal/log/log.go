// Package log is the application's leveled key/value logger.
//
// Call sites pass a message followed by alternating keys and values:
//
//	appLog.Info("refresh done", "sources", 3, "events", 42)
//
// Output goes through a shared logrus logger so that text and JSON formats
// can be selected at startup.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var base = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return l
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") onto a
// Level. Unknown values fall back to info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func SetLevel(l Level) {
	base.SetLevel(toLogrus(l))
}

// Configure applies a level and a format ("text" or "json").
func Configure(level, format string) error {
	lvl, err := ParseLevel(level)
	SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		if err == nil {
			err = fmt.Errorf("unknown log format %q", format)
		}
	}
	return err
}

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

func Debug(msg string, kv ...any) {
	entry(kv).Debug(msg)
}

func Info(msg string, kv ...any) {
	entry(kv).Info(msg)
}

func Warn(msg string, kv ...any) {
	entry(kv).Warn(msg)
}

func Error(msg string, err error, kv ...any) {
	entry(kv).WithError(err).Error(msg)
}

func toLogrus(l Level) logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// entry turns key/value pairs into logrus fields. Non-string keys are
// skipped and a trailing key without a value is ignored.
func entry(kv []any) *logrus.Entry {
	if len(kv) < 2 {
		return logrus.NewEntry(base)
	}
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return base.WithFields(fields)
}
