// Package sanity implements the programming-invariant-violation hook of
// spec §7: "Call the sanity-violation hook, which may abort." Outside of
// tests it logs at error level and terminates the process; tests inject
// a recording hook so a violation can be asserted on without killing the
// test binary.
package sanity

import (
	"log/slog"
	"os"
)

// Hook is called with a human-readable description of the violated
// invariant (e.g. "attempted to pop the global scope").
type Hook func(msg string)

// Default returns a Hook that logs at slog.LevelError via logger and
// calls os.Exit(1). internal/variable accepts such a hook at construction
// (variable.WithSanityHook) so tests can substitute a non-fatal recorder
// instead.
func Default(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(msg string) {
		logger.Error("sanity violation", "msg", msg)
		os.Exit(1)
	}
}

// Recorder is a test-friendly Hook that appends every violation message
// to Messages instead of terminating the process.
type Recorder struct {
	Messages []string
}

// Hook returns a Hook bound to r.
func (r *Recorder) Hook() Hook {
	return func(msg string) {
		r.Messages = append(r.Messages, msg)
	}
}
