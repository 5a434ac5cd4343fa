// Package middleware contains HTTP middleware functions.
//
// A middleware wraps an http.Handler to add behaviour around every request
// (here: one structured log line) without the handlers knowing about it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // before
//	        next.ServeHTTP(w, r)
//	        // after
//	    })
//	}
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logger returns a middleware that logs one line per request.
//
// LOG LINE:
//   - request_id  from chi's RequestID middleware, so the service, store and
//     remote lines logged while serving the request can be matched to it
//   - route       the chi pattern ("/api/mods/{id}"), path is the raw URL path
//   - remote      the client address, already rewritten by RealIP
//   - status, bytes, duration
//
// 5xx responses are logged at Error and 4xx at Warn, so a remote outage or a
// failed save stands out from routine traffic.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// WrapResponseWriter records the status and byte count that
			// http.ResponseWriter doesn't expose.
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// The handler never wrote anything; net/http sends 200.
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.String("remote", r.RemoteAddr),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// routePattern is empty for requests that matched no route.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
