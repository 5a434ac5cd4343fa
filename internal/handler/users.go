package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/minelux/internal/service"
)

// UserHandler serves the admin user management actions.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleList returns every user ordered by username.
//
// HTTP: GET /api/users (admin)
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users := h.users.List()
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCreate adds a regular user without the registration length rules.
//
// HTTP: POST /api/users (admin)
// REQUEST BODY: {"username":"steve","password":"pw"}
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.users.AddUser(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Get(strings.TrimSpace(req.Username))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleDelete removes a user. The reserved admin answers 403.
//
// HTTP: DELETE /api/users/{username} (admin)
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := h.users.DeleteUser(r.Context(), username); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("user deleted by admin", slog.String("username", username))
	w.WriteHeader(http.StatusNoContent)
}
