// Package logging wires log/slog to a colourised console handler.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	debugColor = color.New(color.FgHiBlack)
	infoColor  = color.New(color.FgWhite)
	warnColor  = color.New(color.FgHiYellow)
	errorColor = color.New(color.FgHiRed)

	componentColors = map[string]*color.Color{
		"PLAYER":   color.New(color.FgHiCyan),
		"QUEUE":    color.New(color.FgCyan),
		"RESOLVER": color.New(color.FgHiBlue),
		"STREAM":   color.New(color.FgBlue),
		"DJ":       color.New(color.FgHiMagenta),
		"REGISTRY": color.New(color.FgMagenta),
		"DISCORD":  color.New(color.FgHiGreen),
		"STORAGE":  color.New(color.FgGreen),
		"EVENTS":   color.New(color.FgYellow),
		"STATUS":   color.New(color.FgYellow),
	}

	logFile *os.File
	logMu   sync.Mutex
)

// Options configure Init.
type Options struct {
	Level slog.Level
	File  string
}

// Init installs the console handler as the slog default.
func Init(opts Options) error {
	logMu.Lock()
	defer logMu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var w io.Writer = os.Stdout
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		w = io.MultiWriter(os.Stdout, f)
	}

	slog.SetDefault(slog.New(NewHandler(w, opts.Level)))
	return nil
}

// Close releases the log file, if any.
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// For returns the default logger tagged with a component.
func For(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// Handler prints `15:04:05 [LEVEL] [COMPONENT] message key=value`.
type Handler struct {
	w     io.Writer
	level slog.Leveler
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
}

func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	component := ""
	var fields []string

	collect := func(a slog.Attr) {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fields = append(fields, fmt.Sprintf("%s=%v", key, a.Value.Any()))
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	levelStr, levelColor := levelStyle(r.Level)

	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(levelColor.Sprintf("[%s]", levelStr))
	if component != "" {
		c, ok := componentColors[component]
		if !ok {
			c = color.New(color.FgCyan)
		}
		b.WriteString(" ")
		b.WriteString(c.Sprintf("[%s]", component))
	}
	b.WriteString(" ")
	b.WriteString(r.Message)
	if len(fields) > 0 {
		b.WriteString(" ")
		b.WriteString(debugColor.Sprint(strings.Join(fields, " ")))
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func levelStyle(l slog.Level) (string, *color.Color) {
	switch {
	case l >= slog.LevelError:
		return "ERR", errorColor
	case l >= slog.LevelWarn:
		return "WARN", warnColor
	case l >= slog.LevelInfo:
		return "INFO", infoColor
	default:
		return "DEBUG", debugColor
	}
}
