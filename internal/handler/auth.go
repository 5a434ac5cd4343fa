package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/auth"
	"github.com/sakif/minelux/internal/model"
	"github.com/sakif/minelux/internal/service"
)

// AuthHandler serves /auth/* and the caller's own profile under /api/me.
type AuthHandler struct {
	users  *service.UserService
	tokens *auth.TokenService
	secure bool
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookies marks the session
// cookie Secure, which requires HTTPS.
func NewAuthHandler(
	users *service.UserService,
	tokens *auth.TokenService,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		secure: secureCookies,
		logger: logger,
	}
}

// UserResponse is the public view of a user. The password never leaves the
// service.
type UserResponse struct {
	Username  string     `json:"username"`
	Image     string     `json:"image"`
	Role      model.Role `json:"role"`
	IsAdmin   bool       `json:"isAdmin"`
	CreatedAt string     `json:"createdAt"`
}

func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		Username:  u.Username,
		Image:     u.Image,
		Role:      u.Role,
		IsAdmin:   u.IsAdmin(),
		CreatedAt: u.CreatedAt,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
	Image    string `json:"image"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type imageRequest struct {
	Image string `json:"image"`
}

// HandleRegister creates a regular account and logs it in.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"username":"steve","password":"secret1","confirm":"secret1","image":""}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// The confirmation field is a form concern; the service never sees it.
	if req.Password != "" && req.Confirm != req.Password {
		writeError(w, apperror.ValidationFailed("confirm", "passwords do not match"))
		return
	}

	if err := h.users.Register(r.Context(), req.Username, req.Password, req.Image); err != nil {
		h.logger.Info("registration rejected", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.issueSession(w, http.StatusCreated, req.Username)
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"username":"steve","password":"secret1"}
//
// Wrong username and wrong password get the same answer, so the endpoint
// can't be used to discover which usernames exist.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, apperror.ValidationFailed("username", "username and password are required"))
		return
	}

	if !h.users.Login(r.Context(), req.Username, req.Password) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "invalid username or password",
		})
		return
	}

	h.issueSession(w, http.StatusOK, req.Username)
}

// issueSession sets the JWT cookie for username and answers with the
// profile.
func (h *AuthHandler) issueSession(w http.ResponseWriter, status int, username string) {
	user, err := h.users.Get(strings.TrimSpace(username))
	if err != nil {
		writeError(w, err)
		return
	}

	tokenStr, err := h.tokens.Generate(user.Username)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, tokenStr, int(auth.DefaultTokenTTL.Seconds()))

	h.logger.Info("session issued", slog.String("username", user.Username))
	writeJSON(w, status, toUserResponse(user))
}

// setSessionCookie writes the session cookie. A negative maxAge deletes it.
// SameSite=Lax keeps it off cross-site POSTs.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleLogout deletes the session cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are not tracked server-side, so one copied out of the cookie
// stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the caller's profile.
//
// HTTP: GET /api/me  [auth]
//
// A valid token for a user who has since been deleted gets 404.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	username, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleUpdateImage changes the caller's profile image.
//
// HTTP: PUT /api/me/image
// REQUEST BODY: {"image":"https://..."} or {"image":"data:image/png;base64,..."}
func (h *AuthHandler) HandleUpdateImage(w http.ResponseWriter, r *http.Request) {
	username, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req imageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saved, err := h.users.UpdateUserImage(r.Context(), username, req.Image)
	if err != nil {
		writeError(w, err)
		return
	}
	if !saved {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "the image could not be saved, please try again",
		})
		return
	}

	user, err := h.users.Get(username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// callerOrUnauthorized returns the username RequireAuth stored, answering
// 401 itself when the route was mounted without it.
func callerOrUnauthorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
	}
	return username, ok
}
