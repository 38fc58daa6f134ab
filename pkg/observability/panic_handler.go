package observability

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/projectvision/vision/pkg/httputil"
)

// RecoverPanic logs a recovered panic with its stack. Defer it at the top of
// background goroutines; the panic is swallowed.
func RecoverPanic(logger *Logger, where string) {
	if v := recover(); v != nil {
		logger.WithFields(map[string]interface{}{
			"panic": fmt.Sprint(v),
			"stack": string(debug.Stack()),
			"where": where,
		}).Error("PANIC recovered")
	}
}

// RecoveryMiddleware converts a handler panic into a logged 500 and marks the
// request span as failed. http.ErrAbortHandler is re-raised so net/http can
// abort the connection as usual.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			ctx := r.Context()
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.RecordError(fmt.Errorf("panic: %v", v))
				span.SetStatus(codes.Error, "panic")
			}
			FromContext(ctx).WithFields(map[string]interface{}{
				"panic":  fmt.Sprint(v),
				"stack":  string(debug.Stack()),
				"method": r.Method,
				"path":   r.URL.Path,
			}).Error("PANIC recovered in HTTP handler")

			httputil.WriteInternalError(w)
		}()
		next.ServeHTTP(w, r)
	})
}
