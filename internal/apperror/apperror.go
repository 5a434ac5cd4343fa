// Package apperror holds the error kinds shared by the services, the store
// and both front ends. Callers test the kind with errors.Is and read the
// user-facing text from *AppError; the HTTP layer picks a status from the
// kind, the CLI just prints the message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrProtected  = errors.New("protected record")

	// Remote store failures. These never reach end users on write paths;
	// the store falls back to local persistence instead.
	ErrFetch          = errors.New("remote fetch failed")
	ErrParse          = errors.New("remote document is not valid JSON")
	ErrRevisionLookup = errors.New("remote revision lookup failed")
	ErrCommit         = errors.New("remote commit failed")
)

// AppError pairs a kind with a message safe to show the user.
type AppError struct {
	Err     error  // kind, one of the Err* sentinels
	Message string
	Field   string // input that failed validation
	Status  int    // remote HTTP status, 0 if the request never got an answer
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Protected reports an attempt to delete or demote a record that must
// always exist, such as the reserved admin account.
func Protected(resource, id string) *AppError {
	return &AppError{
		Err:     ErrProtected,
		Message: fmt.Sprintf("%s %s is protected and cannot be deleted", resource, id),
	}
}

// Remote builds an error for a failed call against the remote document
// store. kind is one of ErrFetch, ErrParse, ErrRevisionLookup or ErrCommit.
func Remote(kind error, path string, status int, message string) *AppError {
	if message == "" {
		message = kind.Error()
	}
	return &AppError{
		Err:     kind,
		Message: fmt.Sprintf("%s: %s", path, message),
		Status:  status,
	}
}

// IsRemote reports whether err originated from the remote document store.
func IsRemote(err error) bool {
	return errors.Is(err, ErrFetch) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrRevisionLookup) ||
		errors.Is(err, ErrCommit)
}

// IsRemoteMissing reports whether err is a fetch the remote answered with
// 404: the document does not exist yet, as opposed to being unreachable.
func IsRemoteMissing(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && errors.Is(appErr.Err, ErrFetch) && appErr.Status == 404
}
