package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"hrdash/internal/domain/history"
	"hrdash/internal/requestctx"
)

const (
	HeaderRequestID  = "X-Request-ID"
	HeaderModifiedBy = "X-Modified-By"
)

// RequestID propagates a caller-supplied X-Request-ID or mints a UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := requestctx.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor reads X-Modified-By into the request context. Missing or blank
// headers fall back to the system actor.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(HeaderModifiedBy))
		if actor == "" {
			actor = history.DefaultActor
		}
		if len(actor) > 255 {
			actor = actor[:255]
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithActor(r.Context(), actor)))
	})
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}

func GetActor(ctx context.Context) string {
	if actor := requestctx.GetActor(ctx); actor != "" {
		return actor
	}
	return history.DefaultActor
}
