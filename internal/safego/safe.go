// Package safego launches goroutines that log and survive panics.
package safego

import (
	"context"
	"net/http"
	"runtime"

	runtimeutil "k8s.io/apimachinery/pkg/util/runtime"

	"github.com/ngenohkevin/hivedeck-monitor/internal/logging"
)

func init() {
	runtimeutil.ReallyCrash = false
	runtimeutil.PanicHandlers = []func(context.Context, any){logPanic}
}

func logPanic(_ context.Context, r any) {
	if r == http.ErrAbortHandler { // nolint:errorlint
		return
	}

	const size = 64 << 10
	stacktrace := make([]byte, size)
	stacktrace = stacktrace[:runtime.Stack(stacktrace, false)]
	logging.Error("observed a panic: %v\n%s", r, stacktrace)
}

// Go runs f on a new goroutine. A panic in f is logged, not propagated.
func Go(f func()) {
	go func() {
		Run(f)
	}()
}

// Run calls f on the current goroutine and swallows a panic after logging it.
// It reports whether f returned normally.
func Run(f func()) (ok bool) {
	defer runtimeutil.HandleCrash()
	f()
	return true
}
