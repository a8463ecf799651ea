package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithComponent returns a context whose logger carries a component tag,
// so log lines from the session, realtime and notify managers can be
// told apart without each call site repeating it.
func WithComponent(ctx context.Context, component string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("component", component))
}
