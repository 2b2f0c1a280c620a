package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text, json or auto. Auto writes colored text to terminals and JSON elsewhere.
	Format string

	File struct {
		// Path enables a rotated JSON log file next to the console output.
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// SetupLogger installs the default slog logger. The returned closer flushes the log file, if any.
func SetupLogger(c LogConfig) (io.Closer, error) {
	h, closer, err := NewLogHandler(c, os.Stderr)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(h))
	return closer, nil
}

// NewLogHandler builds the handler described by c writing console output to out.
func NewLogHandler(c LogConfig, out io.Writer) (slog.Handler, io.Closer, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}

	var console slog.Handler
	switch c.Format {
	case "json":
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "text":
		console = tint.NewHandler(out, &tint.Options{Level: level, TimeFormat: time.RFC3339, NoColor: !isTerminal(out)})
	case "", "auto":
		if isTerminal(out) {
			console = tint.NewHandler(out, &tint.Options{Level: level, TimeFormat: time.Kitchen})
		} else {
			console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
		}
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	if c.File.Path == "" {
		return console, nopCloser{}, nil
	}

	f := &lumberjack.Logger{
		Filename:   c.File.Path,
		MaxSize:    c.File.MaxSizeMB,
		MaxBackups: c.File.MaxBackups,
		MaxAge:     c.File.MaxAgeDays,
		Compress:   true,
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level, AddSource: true})

	return slogmulti.Fanout(console, file), f, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
