package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps a config value to a Level, falling back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type BaseLogger struct {
	mu       *sync.Mutex
	prefix   string
	writer   io.Writer
	minLevel Level
	// echo duplicates every line to the standard logger
	echo bool
}

func NewLogger(writer io.Writer, prefix string) *BaseLogger {
	return &BaseLogger{
		mu:       &sync.Mutex{},
		writer:   writer,
		prefix:   prefix,
		minLevel: LevelInfo,
		echo:     writer == nil,
	}
}

// SetLevel drops every message below level.
func (l *BaseLogger) SetLevel(level Level) *BaseLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
	return l
}

// SetEcho controls whether lines are duplicated to the std log package.
func (l *BaseLogger) SetEcho(echo bool) *BaseLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.echo = echo
	return l
}

func (l *BaseLogger) Log(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

func (l *BaseLogger) Debug(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }
func (l *BaseLogger) Info(format string, v ...interface{})  { l.write(LevelInfo, format, v...) }
func (l *BaseLogger) Warn(format string, v ...interface{})  { l.write(LevelWarn, format, v...) }
func (l *BaseLogger) Error(format string, v ...interface{}) { l.write(LevelError, format, v...) }

func (l *BaseLogger) write(level Level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	message := fmt.Sprintf(format, v...)
	if l.prefix != "" {
		message = l.prefix + " " + message
	}
	message = level.String() + " " + message

	if l.writer != nil {
		fmt.Fprintln(l.writer, message)
	}
	if l.echo {
		log.Print(message)
	}
}

// WithPrefix returns a logger sharing the writer, level and lock of l.
func (l *BaseLogger) WithPrefix(extraPrefix string) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := extraPrefix
	if l.prefix != "" {
		prefix = l.prefix + extraPrefix
	}
	return &BaseLogger{
		mu:       l.mu,
		writer:   l.writer,
		prefix:   prefix,
		minLevel: l.minLevel,
		echo:     l.echo,
	}
}

func (l *BaseLogger) SetPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefix = prefix
}

func (l *BaseLogger) SetWriter(writer io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = writer
}

// Discard is a logger that writes nowhere. Handy in tests.
func Discard() *BaseLogger {
	return NewLogger(io.Discard, "").SetEcho(false)
}
