package util

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

func ContextTick(ctx context.Context, d time.Duration, onTick func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onTick()
		}
	}
}

// Guarded wraps a periodic task so that neither a returned error nor a panic escapes the tick loop.
func Guarded(logger *slog.Logger, task string, fn func() error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("recovered panic in scheduled task", "task", task, "panic", fmt.Sprint(r))
				debug.PrintStack()
			}
		}()

		if err := fn(); err != nil {
			logger.Error("scheduled task failed", "task", task, "err", err)
		}
	}
}
