package handler

// RESPONSES:
// Every handler answers through writeJSON or writeError. Errors always have
// the same body, whatever the status:
//
//	{"error": "validation_error", "message": "...", "field": "version"}
//
// "error" is a fixed code the frontend can switch on; "field" names the
// offending input on validation failures and is omitted otherwise.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/store"
)

// maxBodyBytes caps request bodies. Profile images may arrive inline as data
// URLs of up to 2 MiB, plus JSON overhead.
const maxBodyBytes = 3 << 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends data with the given status. A nil data sends headers only.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Status is already on the wire.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// errorStatus maps an apperror kind to its status and code. Anything it
// doesn't recognise is a 500.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrProtected):
		return http.StatusForbidden, "protected"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case apperror.IsRemote(err):
		return http.StatusBadGateway, "remote_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError translates a service error into a JSON error response.
// Status codes live here; the services only return apperror values, which
// the CLI renders as plain messages instead.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := errorStatus(err)
		writeJSON(w, status, ErrorResponse{
			Error:   code,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Neither the remote nor the local store took the write. The change was
	// rolled back, so the client should retry.
	if errors.Is(err, store.ErrNotPersisted) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "the change could not be saved, please try again",
		})
		return
	}

	// Raw errors can carry file paths and SQL; the client gets none of it.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON request body into dst, answering 400 itself when
// the body is missing, malformed or too large. It reports whether the
// handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "request body must be valid JSON"
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			msg = fmt.Sprintf("request body must be %d bytes or fewer", tooBig.Limit)
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_json", Message: msg})
		return false
	}
	return true
}
