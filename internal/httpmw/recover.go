package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/xerrors"
)

const panicBody = `{"error":"Internal server error"}`

// Recover turns a handler panic into a logged error and a JSON 500.
// onPanic runs after logging. http.ErrAbortHandler is re-panicked so
// net/http can drop the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if ok {
					err = xerrors.Wrap(err, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				// Recover sits outside RequestID, so the id is only on the response
				logger.With(
					"request_id", w.Header().Get("X-Request-Id"),
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"stack", string(debug.Stack()),
				).Error(r.Context(), err, "handler panic recovered")

				if onPanic != nil {
					onPanic()
				}

				h := w.Header()
				h.Set("Content-Type", "application/json; charset=utf-8")
				h.Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(panicBody))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
