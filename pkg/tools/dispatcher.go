package tools

import (
	"context"
	"log/slog"
)

// ToolFunc defines a function executed asynchronously.
type ToolFunc func(ctx context.Context) error

// Dispatch runs the provided tool in a separate goroutine. Failures are
// logged, not propagated. fire-and-forget solution
func Dispatch(ctx context.Context, name string, fn ToolFunc) {
	go func() {
		if err := fn(ctx); err != nil {
			slog.Error("background task failed", "task", name, "error", err)
		}
	}()
}
