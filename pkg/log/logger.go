// Structured logging for the print menu controller
//
// Per-component loggers with prefixes, structured fields, and text or JSON
// output. Events are encoded by zerolog; this package keeps the small
// printf-style surface the rest of the tree logs through.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	// FormatText outputs human-readable console lines
	FormatText OutputFormat = iota
	// FormatJSON outputs one JSON object per line
	FormatJSON
)

// Fields is a map of structured logging fields
type Fields map[string]interface{}

const timeFormat = "2006-01-02 15:04:05.000"

// frames between the user's call site and zerolog's Msg
const callerSkip = 4

// Logger is a prefixed component logger.
type Logger struct {
	mu       sync.Mutex
	prefix   string
	writer   io.Writer
	level    LogLevel
	colorize bool
	format   OutputFormat
	caller   bool
	zl       zerolog.Logger
}

// Entry carries fields for a single log call.
type Entry struct {
	logger *Logger
	fields Fields
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// New creates a new logger with the given prefix
func New(prefix string) *Logger {
	l := &Logger{
		prefix:   prefix,
		writer:   os.Stderr,
		level:    INFO,
		colorize: os.Getenv("NO_COLOR") == "",
		format:   FormatText,
	}
	l.rebuild()
	return l
}

// rebuild recreates the zerolog logger; l.mu must be held or l unshared.
func (l *Logger) rebuild() {
	var out io.Writer = l.writer
	if l.format == FormatText {
		out = zerolog.ConsoleWriter{
			Out:        l.writer,
			NoColor:    !l.colorize,
			TimeFormat: timeFormat,
		}
	}
	ctx := zerolog.New(out).Level(l.level.zerolog()).With().Timestamp()
	if l.prefix != "" {
		ctx = ctx.Str("logger", l.prefix)
	}
	if l.caller {
		ctx = ctx.CallerWithSkipFrameCount(callerSkip)
	}
	l.zl = ctx.Logger()
}

func (l *Logger) set(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
	l.rebuild()
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) { l.set(func() { l.level = level }) }

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetWriter sets the output writer (e.g., for testing)
func (l *Logger) SetWriter(w io.Writer) { l.set(func() { l.writer = w }) }

// SetColorize enables or disables colorized output
func (l *Logger) SetColorize(enable bool) { l.set(func() { l.colorize = enable }) }

// SetFormat sets the output format (FormatText or FormatJSON)
func (l *Logger) SetFormat(format OutputFormat) { l.set(func() { l.format = format }) }

// SetCaller enables or disables caller info in log output
func (l *Logger) SetCaller(enable bool) { l.set(func() { l.caller = enable }) }

// Prefix returns the component prefix.
func (l *Logger) Prefix() string { return l.prefix }

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err.Error())
}

// emit writes one event. Every exported logging method calls emit
// directly so the caller skip count stays fixed.
func (l *Logger) emit(level LogLevel, msg string, args []interface{}, fields Fields) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	ev := zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	ev.Msg(msg)
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(DEBUG, msg, args, nil) }

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) { l.emit(INFO, msg, args, nil) }

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) { l.emit(WARN, msg, args, nil) }

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(ERROR, msg, args, nil) }

// WithPrefix returns a new logger sharing this logger's settings.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := &Logger{
		prefix:   prefix,
		writer:   l.writer,
		level:    l.level,
		colorize: l.colorize,
		format:   l.format,
		caller:   l.caller,
	}
	n.rebuild()
	return n
}

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", err.Error())
}

func (e *Entry) Debug(msg string) { e.logger.emit(DEBUG, msg, nil, e.fields) }
func (e *Entry) Info(msg string)  { e.logger.emit(INFO, msg, nil, e.fields) }
func (e *Entry) Warn(msg string)  { e.logger.emit(WARN, msg, nil, e.fields) }
func (e *Entry) Error(msg string) { e.logger.emit(ERROR, msg, nil, e.fields) }

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.logger.emit(ERROR, format, args, e.fields)
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// GetLogger returns a logger derived from the default one.
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	if defaultLogger == nil {
		defaultLogger = New("lcdprint")
	}
	d := defaultLogger
	defaultMu.Unlock()
	return d.WithPrefix(prefix)
}

func Debug(msg string, args ...interface{}) { GetLogger("").emit(DEBUG, msg, args, nil) }
func Info(msg string, args ...interface{})  { GetLogger("").emit(INFO, msg, args, nil) }
func Warn(msg string, args ...interface{})  { GetLogger("").emit(WARN, msg, args, nil) }
func Error(msg string, args ...interface{}) { GetLogger("").emit(ERROR, msg, args, nil) }

func init() {
	l := New("lcdprint")
	ConfigureFromEnv(l)
	defaultLogger = l
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - LCDPRINT_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - LCDPRINT_LOG_FORMAT: text, json
//   - LCDPRINT_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if levelStr := os.Getenv("LCDPRINT_LOG_LEVEL"); levelStr != "" {
		l.SetLevel(ParseLevel(levelStr))
	}
	switch strings.ToLower(os.Getenv("LCDPRINT_LOG_FORMAT")) {
	case "json":
		l.SetFormat(FormatJSON)
	case "text":
		l.SetFormat(FormatText)
	}
	if os.Getenv("LCDPRINT_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
