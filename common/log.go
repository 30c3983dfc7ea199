package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LogLevel is the minimum severity a Logger prints.
type LogLevel int

const (
	LogFull     LogLevel = iota // everything
	LogMedium                   // ok, warnings, errors
	LogStrict                   // warnings, errors
	LogCritical                 // errors only
	LogNone
)

func (l LogLevel) String() string {
	switch l {
	case LogFull:
		return "full"
	case LogMedium:
		return "medium"
	case LogStrict:
		return "strict"
	case LogCritical:
		return "critical"
	case LogNone:
		return "none"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// ParseLogLevel maps a CLI name to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "all":
		return LogFull, nil
	case "medium", "":
		return LogMedium, nil
	case "strict":
		return LogStrict, nil
	case "critical":
		return LogCritical, nil
	case "none", "off":
		return LogNone, nil
	}
	return LogNone, fmt.Errorf("unknown log level %q (full, medium, strict, critical, none)", s)
}

type event int

const (
	eventInfo event = iota
	eventOk
	eventWarn
	eventErr
)

var eventStyle = map[event]struct {
	prefix string
	color  string
}{
	eventOk:   {"[+]", "\033[32m"},
	eventInfo: {"[~]", "\033[36m"},
	eventWarn: {"[!]", "\033[33m"},
	eventErr:  {"[-]", "\033[31m"},
}

const colorReset = "\033[0m"

// visible reports whether an event passes the threshold.
func (l LogLevel) visible(e event) bool {
	switch l {
	case LogFull:
		return true
	case LogMedium:
		return e != eventInfo
	case LogStrict:
		return e == eventWarn || e == eventErr
	case LogCritical:
		return e == eventErr
	}
	return false
}

// Logger prints leveled console messages. A nil *Logger discards everything,
// and one Logger may be shared by several goroutines.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  LogLevel
	color  bool
	prefix string
}

// NewLogger returns a Logger writing to out (stderr when nil).
func NewLogger(out io.Writer, level LogLevel, color bool) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, level: level, color: color}
}

// With returns a Logger sharing output and level that tags every line, used
// to tell files apart when several are processed at once.
func (l *Logger) With(tag string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{out: &lockedWriter{mu: &l.mu, w: l.out}, level: l.level, color: l.color, prefix: l.prefix + tag + ": "}
}

// Level returns the threshold, LogNone for a nil Logger.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogNone
	}
	return l.level
}

func (l *Logger) Ok(format string, args ...any)   { l.emit(eventOk, format, args...) }
func (l *Logger) Info(format string, args ...any) { l.emit(eventInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any) { l.emit(eventWarn, format, args...) }
func (l *Logger) Err(format string, args ...any)  { l.emit(eventErr, format, args...) }

func (l *Logger) emit(e event, format string, args ...any) {
	if l == nil || !l.level.visible(e) {
		return
	}
	style := eventStyle[e]
	msg := l.prefix + fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color {
		fmt.Fprintf(l.out, "%s%s%s %s\n", style.color, style.prefix, colorReset, msg)
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", style.prefix, msg)
}

// lockedWriter serializes writes of derived loggers with their parent.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
