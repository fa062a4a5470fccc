package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"hrdash/internal/transport/http/api"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so the server can drop the connection.
func Recoverer(log *logrus.Logger) func(http.Handler) http.Handler {
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
				requestID := GetRequestID(r.Context())
				log.WithFields(logrus.Fields{
					"panic":     rec,
					"requestId": requestID,
					"method":    r.Method,
					"path":      r.URL.Path,
					"stack":     string(debug.Stack()),
				}).Error("handler panicked")
				api.Fail(w, http.StatusInternalServerError, "internal_error", "internal error", requestID)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
