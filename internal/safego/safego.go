// Package safego launches named background goroutines that log panics instead
// of crashing the server.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine. A panic is recovered and logged with task and
// the goroutine's stack. Callers include the rate limiter janitor, the session
// reaper's first pass and background audit writes.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked",
					"task", task,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
