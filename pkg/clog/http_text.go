package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// HTTPTextHandler renders records as colored single-request lines for local
// development. Request columns (method, path, status) lead the line, the
// remaining attributes trail indented underneath.
type HTTPTextHandler struct {
	level    slog.Level
	useColor bool
	attrs    []slog.Attr
	prefix   string
	mu       *sync.Mutex
	w        io.Writer
}

type TextHandlerOption func(*HTTPTextHandler)

func WithLevel(level slog.Level) TextHandlerOption {
	return func(h *HTTPTextHandler) { h.level = level }
}

func WithColor(enabled bool) TextHandlerOption {
	return func(h *HTTPTextHandler) { h.useColor = enabled }
}

func NewHTTPTextHandler(w io.Writer, opts ...TextHandlerOption) *HTTPTextHandler {
	h := &HTTPTextHandler{
		level:    slog.LevelInfo,
		useColor: true,
		mu:       &sync.Mutex{},
		w:        w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *HTTPTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *HTTPTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

// leading columns pulled out of the attribute set, in display order
var columnKeys = []string{"proto", "method", "path", "status"}

func (h *HTTPTextHandler) Handle(_ context.Context, record slog.Record) error {
	kv := map[string]string{}
	for _, a := range h.attrs {
		kv[h.prefix+a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		kv[h.prefix+a.Key] = a.Value.String()
		return true
	})

	var line strings.Builder
	line.WriteString(record.Time.Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(h.paint(levelColor(record.Level), record.Level.String()))
	line.WriteByte(' ')
	for _, key := range columnKeys {
		if v, ok := kv[key]; ok {
			line.WriteString(v)
			line.WriteByte(' ')
			delete(kv, key)
		}
	}
	line.WriteString(h.paint(color.FgGreen, record.Message))
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		line.WriteByte(' ')
		line.WriteString(h.paint(color.FgRed, e))
	}
	line.WriteByte('\n')

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&line, "    %s=%s\n", k, kv[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

func (h *HTTPTextHandler) paint(c color.Attribute, s string) string {
	if !h.useColor {
		return s
	}
	return color.New(c).Sprint(s)
}

func levelColor(l slog.Level) color.Attribute {
	switch {
	case l >= slog.LevelError:
		return color.FgRed
	case l >= slog.LevelWarn:
		return color.FgYellow
	case l >= slog.LevelInfo:
		return color.FgBlue
	default:
		return color.FgCyan
	}
}
