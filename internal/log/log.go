// Package log provides context-aware logging for buildcache.
//
// Messages go to two sinks: the console (stderr) for the user, and an
// optional rotating JSON log file configured in the [log] config section.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

var discard = New(io.Discard, false, true)

// Logger writes user-facing messages and leveled key-value logs.
type Logger struct {
	out     io.Writer
	verbose bool
	quiet   bool

	console *logrus.Logger
	file    *logrus.Logger
	closer  io.Closer
}

// FileOptions configures the log file sink.
type FileOptions struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// New creates a new logger writing to out.
// verbose enables debug output; quiet suppresses all console output and
// takes precedence over verbose.
func New(out io.Writer, verbose, quiet bool) *Logger {
	console := logrus.New()
	console.SetOutput(out)
	console.SetFormatter(lineFormatter{})
	switch {
	case quiet:
		console.SetOutput(io.Discard)
		console.SetLevel(logrus.PanicLevel)
	case verbose:
		console.SetLevel(logrus.DebugLevel)
	default:
		console.SetLevel(logrus.WarnLevel)
	}

	return &Logger{
		out:     out,
		verbose: verbose,
		quiet:   quiet,
		console: console,
	}
}

// OpenFile adds a rotating JSON log file. An empty path is a no-op.
func (l *Logger) OpenFile(opts FileOptions) error {
	if opts.Path == "" {
		return nil
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
		LocalTime:  true,
	}

	file := logrus.New()
	file.SetOutput(rotator)
	file.SetLevel(level)
	file.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	l.file = file
	l.closer = rotator
	return nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	l.file = nil
	return err
}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context.
// Returns a no-op logger if none is attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return discard
}

// Printf writes formatted output. Suppressed in quiet mode.
func (l *Logger) Printf(format string, args ...any) {
	if l.quiet {
		return
	}
	fmt.Fprintf(l.out, format, args...)
}

// Println writes a line of output. Suppressed in quiet mode.
func (l *Logger) Println(args ...any) {
	if l.quiet {
		return
	}
	fmt.Fprintln(l.out, args...)
}

// Debug logs msg with key-value pairs. Shown on the console only in
// verbose mode. A trailing key without value is dropped.
func (l *Logger) Debug(msg string, keyvals ...any) {
	l.log(logrus.DebugLevel, msg, keyvals)
}

// Info logs msg with key-value pairs. Shown on the console only in
// verbose mode.
func (l *Logger) Info(msg string, keyvals ...any) {
	l.log(logrus.InfoLevel, msg, keyvals)
}

// Warn logs msg with key-value pairs. Shown on the console unless quiet.
func (l *Logger) Warn(msg string, keyvals ...any) {
	l.log(logrus.WarnLevel, msg, keyvals)
}

func (l *Logger) log(level logrus.Level, msg string, keyvals []any) {
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fields[fmt.Sprint(keyvals[i])] = keyvals[i+1]
	}

	// Info is debug detail on the console but a regular record in the file
	consoleLevel := level
	if level == logrus.InfoLevel {
		consoleLevel = logrus.DebugLevel
	}
	l.console.WithFields(fields).Log(consoleLevel, msg)

	if l.file != nil {
		l.file.WithFields(fields).Log(level, msg)
	}
}

// IsVerbose returns true if verbose mode is enabled and not overridden by quiet.
func (l *Logger) IsVerbose() bool {
	return l.verbose && !l.quiet
}

// Writer returns the underlying writer.
func (l *Logger) Writer() io.Writer {
	return l.out
}

// lineFormatter renders console entries as "msg key=val key=val".
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	if e.Level <= logrus.WarnLevel {
		b.WriteString(strings.ToUpper(e.Level.String()))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
