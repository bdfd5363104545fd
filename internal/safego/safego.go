// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine under the given task name. If fn panics, the
// panic is recovered and logged with the task name rather than crashing the
// process. Catalog fetch tasks started by the selection cascade run through here.
func Go(task string, fn func()) {
	go Run(task, fn)
}

// Run calls fn on the current goroutine with the same recovery as Go. It
// reports whether fn returned normally.
func Run(task string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background task", "task", task, "panic", r)
			ok = false
		}
	}()
	fn()
	return true
}
