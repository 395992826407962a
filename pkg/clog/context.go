package clog

import (
	"context"
	"log/slog"
	"sync"
)

// Attribute keys shared between the error helpers and the text handler.
const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// bag collects request-scoped attributes. Handlers later in the middleware
// chain and the error path both append to it, the logging handler drains it.
type bag struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type bagKey struct{}

// ContextWithSlog attaches an empty attribute bag to ctx. Without it the
// Add* helpers are no-ops.
func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, bagKey{}, &bag{})
}

func AddAttrs(ctx context.Context, attrs ...slog.Attr) {
	b, ok := ctx.Value(bagKey{}).(*bag)
	if !ok {
		return
	}
	b.mu.Lock()
	b.attrs = append(b.attrs, attrs...)
	b.mu.Unlock()
}

func AddError(ctx context.Context, err error) {
	AddAttrs(ctx, slog.String(ErrorAttributeKey, err.Error()))
}

func AddStack(ctx context.Context, stack string) {
	AddAttrs(ctx, slog.String(StackAttributeKey, stack))
}

// GetAttributes returns a snapshot of the bag, nil when ctx carries none.
func GetAttributes(ctx context.Context) []slog.Attr {
	b, ok := ctx.Value(bagKey{}).(*bag)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]slog.Attr, len(b.attrs))
	copy(out, b.attrs)
	return out
}
