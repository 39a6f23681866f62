package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes SetupWithOptions. A zero value logs JSON at info level to
// stdout.
type Options struct {
	Service string
	Env     string
	Level   string

	// File, when set, mirrors every line into a rotating log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Writer replaces stdout, mainly for tests.
	Writer io.Writer
}

// SetupWithOptions installs a JSON slog logger as the process default and
// routes the standard log package through it. Every line carries the service
// and env labels. The returned closer flushes the rotating file, if any.
func SetupWithOptions(opts Options) (*slog.Logger, io.Closer) {
	out, closer := opts.sink()
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: renameCoreAttrs,
	}).WithAttrs(opts.labels())

	logger := slog.New(handler)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
	return logger, closer
}

func (o Options) sink() (io.Writer, io.Closer) {
	var out io.Writer = os.Stdout
	if o.Writer != nil {
		out = o.Writer
	}
	file := strings.TrimSpace(o.File)
	if file == "" {
		return out, nopCloser{}
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    positiveOr(o.MaxSizeMB, 100),
		MaxBackups: positiveOr(o.MaxBackups, 5),
		MaxAge:     positiveOr(o.MaxAgeDays, 28),
		Compress:   true,
	}
	return io.MultiWriter(out, rotator), rotator
}

func (o Options) labels() []slog.Attr {
	labels := []slog.Attr{slog.String("service", strings.TrimSpace(o.Service))}
	if env := strings.TrimSpace(o.Env); env != "" {
		labels = append(labels, slog.String("env", env))
	}
	return labels
}

// renameCoreAttrs emits timestamp/severity/message instead of slog's
// time/level/msg.
func renameCoreAttrs(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
