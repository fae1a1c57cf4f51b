// internal/recovery/recovery.go
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

// ErrPanic wraps a panic recovered by Guard
var ErrPanic = errors.New("panic recovered")

// HandlePanic should be deferred at the top of main().
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// HandlePanicFunc logs panic details and calls the provided cleanup function,
// e.g. to finalize an open recording before exiting.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

// Guard wraps fn so a panic is returned as an error wrapping ErrPanic
// instead of crashing the process. Intended for errgroup workers:
//
//	g.Go(recovery.Guard("session", func() error { return ctrl.Run(ctx) }))
func Guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("worker panicked", "worker", name, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w in %s: %v", ErrPanic, name, r)
			}
		}()
		return fn()
	}
}
