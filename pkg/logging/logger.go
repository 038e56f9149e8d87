package logging

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

func init() {
	// Only colorize log output when standard error is actually a terminal,
	// matching how the teacher repo pairs fatih/color with an isatty check
	// before trusting ANSI escapes.
	color.NoColor = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. Each logger carries its own
// level, checked against the level of the message being logged; a message is
// emitted only if its level is at or below the logger's configured level.
// It is safe for concurrent use.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
	// level is the maximum level this logger will emit. Subloggers start
	// from a copy of it taken when they are created.
	level *int32
}

// RootLogger is the root logger from which all other loggers derive. It
// defaults to LevelInfo.
var RootLogger = NewLogger(LevelInfo)

// NewLogger creates a new root logger at the given level.
func NewLogger(level Level) *Logger {
	v := int32(level)
	return &Logger{level: &v}
}

// Sublogger creates a new sublogger with the specified name. It starts at
// its parent's current level; later SetLevel calls on either logger do not
// affect the other.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}

	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	level := int32(l.Level())
	return &Logger{
		prefix: prefix,
		level:  &level,
	}
}

// Level returns the logger's current level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return Level(atomic.LoadInt32(l.level))
}

// SetLevel adjusts the logger's level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	atomic.StoreInt32(l.level, int32(level))
}

// enabled reports whether a message at the given level should be emitted.
func (l *Logger) enabled(level Level) bool {
	return l != nil && l.Level() >= level
}

// output is the internal logging method.
func (l *Logger) output(level Level, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	switch level {
	case LevelError:
		line = color.RedString("%s", line)
	case LevelWarn:
		line = color.YellowString("%s", line)
	}
	log.Output(3, line)
}

// Error logs error information, always, if the logger's level allows it.
func (l *Logger) Error(v ...interface{}) {
	if l.enabled(LevelError) {
		l.output(LevelError, fmt.Sprint(v...))
	}
}

// Errorf logs formatted error information.
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.output(LevelError, fmt.Sprintf(format, v...))
	}
}

// Warn logs non-fatal error information.
func (l *Logger) Warn(v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.output(LevelWarn, fmt.Sprint(v...))
	}
}

// Warnf logs formatted non-fatal error information.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.output(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Info logs basic execution information.
func (l *Logger) Info(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(LevelInfo, fmt.Sprint(v...))
	}
}

// Infof logs formatted basic execution information.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Debug logs advanced execution information.
func (l *Logger) Debug(v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(LevelDebug, fmt.Sprint(v...))
	}
}

// Debugf logs formatted advanced execution information.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Trace logs low-level execution information — the individual scheduling
// decisions made by the task queue and task pipeline.
func (l *Logger) Trace(v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.output(LevelTrace, fmt.Sprint(v...))
	}
}

// Tracef logs formatted low-level execution information.
func (l *Logger) Tracef(format string, v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.output(LevelTrace, fmt.Sprintf(format, v...))
	}
}
