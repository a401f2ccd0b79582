// Package recovery keeps a panic in one goroutine or packet handler from
// taking down the whole transfer.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoverWithLog recovers from panics and logs them with the provided logger.
// It must be deferred directly:
//
//	go func() {
//	    defer recovery.RecoverWithLog(logger, "ack-listener")
//	    // ... goroutine work
//	}()
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
	}
}

// RecoverWithCallback recovers from panics, logs them, and calls the optional
// callback with the recovered value.
func RecoverWithCallback(logger *slog.Logger, name string, callback func(recovered any)) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
		if callback != nil {
			callback(r)
		}
	}
}

func logPanic(logger *slog.Logger, name string, r any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("panic recovered",
		slog.String("goroutine", name),
		slog.String("panic", fmt.Sprintf("%v", r)),
		slog.String("stack", string(debug.Stack())))
}
