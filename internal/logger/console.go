package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger writes leveled, timestamped log lines to a writer,
// colorizing the level tag when the writer is a TTY. Colors are
// automatically disabled on a non-TTY destination (redirected output,
// pipes) via an explicit isatty check on construction.
type ConsoleLogger struct {
	mu       sync.Mutex
	w        io.Writer
	level    Level
	useColor bool
}

// NewConsoleLogger builds a ConsoleLogger writing to w at minLevel.
func NewConsoleLogger(w io.Writer, minLevel Level) *ConsoleLogger {
	return &ConsoleLogger{w: w, level: minLevel, useColor: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *ConsoleLogger) levelColor(l Level) *color.Color {
	switch l {
	case LevelDebug:
		return color.New(color.FgCyan)
	case LevelWarn:
		return color.New(color.FgYellow)
	case LevelError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

func (c *ConsoleLogger) log(l Level, msg string, args ...any) {
	if l < c.level {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := time.Now().Format("15:04:05")
	tag := l.String()
	if c.useColor {
		tag = c.levelColor(l).Sprint(tag)
	}
	line := fmt.Sprintf("[%s] %s %s", ts, tag, fmt.Sprintf(msg, args...))
	fmt.Fprintln(c.w, line)
}

func (c *ConsoleLogger) Debug(msg string, args ...any) { c.log(LevelDebug, msg, args...) }
func (c *ConsoleLogger) Info(msg string, args ...any)  { c.log(LevelInfo, msg, args...) }
func (c *ConsoleLogger) Warn(msg string, args ...any)  { c.log(LevelWarn, msg, args...) }
func (c *ConsoleLogger) Error(msg string, args ...any) { c.log(LevelError, msg, args...) }
