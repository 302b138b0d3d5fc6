package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for logging in the lspbridge system.
// It provides standard logging levels and a mechanism to add structured context.
type Logger interface {
	// Debug logs a message at the debug level.
	Debug(msg string, args ...any)
	// Info logs a message at the info level.
	Info(msg string, args ...any)
	// Warn logs a message at the warning level.
	Warn(msg string, args ...any)
	// Error logs a message at the error level.
	Error(msg string, args ...any)
	// With returns a new Logger with the given structured context added.
	With(args ...any) Logger
}

// Log is the global logger instance used throughout the application.
// It is initialized with a default JSON handler pointing to stdout.
var Log Logger = NewWithWriter(os.Stdout, "info")

// FileOptions configures rotating file output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// InitLogger initializes the global Log instance with the specified logging level.
// Supported levels are "debug", "info", "warn", and "error".
// It uses a JSON handler and includes source file information in the output.
func InitLogger(level string) {
	Log = NewWithWriter(os.Stdout, level)
}

// InitFileLogger points the global Log at a rotating log file.
// The returned closer releases the file and must be closed on shutdown.
func InitFileLogger(level string, opts FileOptions) io.Closer {
	w := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	Log = NewWithWriter(w, level)
	return w
}

// NewWithWriter creates a Logger writing JSON records to w.
// This is useful for testing where we want to capture the output.
func NewWithWriter(w io.Writer, level string) Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
		// Add source file info for better debugging
		AddSource: true,
	}
	return &wrapper{l: slog.New(slog.NewJSONHandler(w, opts))}
}

// Named returns a child of the global logger tagged with a component name,
// e.g. "lsp.manager" or "lsp.stdout".
func Named(name string) Logger {
	return Log.With("logger", name)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type wrapper struct {
	l *slog.Logger
}

func (w *wrapper) Debug(msg string, args ...any) { w.l.Debug(msg, args...) }
func (w *wrapper) Info(msg string, args ...any)  { w.l.Info(msg, args...) }
func (w *wrapper) Warn(msg string, args ...any)  { w.l.Warn(msg, args...) }
func (w *wrapper) Error(msg string, args ...any) { w.l.Error(msg, args...) }
func (w *wrapper) With(args ...any) Logger       { return &wrapper{l: w.l.With(args...)} }

// Personal.AI order the ending
