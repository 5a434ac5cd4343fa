package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// contextKey keeps our context values out of reach of other packages.
type contextKey string

const usernameKey contextKey = "username"

// CookieName is the cookie that carries the session JWT.
const CookieName = "token"

// RequireAuth answers 401 unless the request carries a valid "token" cookie.
// On success the username is available through UsernameFromContext.
//
// The cookie is HttpOnly, so page scripts never see the token.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			username, err := tokens.Validate(cookie.Value)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUsername(r.Context(), username)))
		})
	}
}

// AdminChecker reports whether a user holds the admin role.
// service.UserService satisfies it.
type AdminChecker interface {
	IsAdmin(username string) bool
}

// RequireAdmin answers 403 for callers who are not admins. Mount it after
// RequireAuth; a request with no username in its context gets 401.
//
// The role is read from the users document on every request, so a demoted
// or deleted admin loses access at once.
func RequireAdmin(users AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := UsernameFromContext(r.Context())
			switch {
			case !ok:
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
			case !users.IsAdmin(username):
				writeAuthError(w, http.StatusForbidden, "forbidden", "admin role required")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// UsernameFromContext returns the caller set by RequireAuth, or ("", false)
// for anonymous requests.
func UsernameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok && name != ""
}

// WithUsername returns a copy of ctx carrying username, as RequireAuth would.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// writeAuthError uses the same body shape as handler.ErrorResponse.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
