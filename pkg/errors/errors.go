// Package errors defines the sentinel errors shared by the indexer, the
// snapshot loaders and the search service, and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInvalidSnapshot  = errors.New("invalid snapshot")
	ErrIndexNotLoaded   = errors.New("index not loaded")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// statuses is checked in order; the first sentinel in the chain wins.
var statuses = []struct {
	sentinel error
	status   int
}{
	{ErrDocumentNotFound, http.StatusNotFound},
	{ErrSnapshotNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrInvalidSnapshot, http.StatusUnprocessableEntity},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrIndexNotLoaded, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
}

// AppError carries a message that is safe to show a client alongside the
// sentinel that decides its status.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string { return e.Err.Error() + ": " + e.Message }
func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, message string) *AppError {
	return &AppError{Err: sentinel, Message: message}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether any error in err's chain matches target. It lets
// callers importing this package under its usual name skip the stdlib one.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// HTTPStatusCode maps an error to the status the HTTP APIs answer with.
func HTTPStatusCode(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.sentinel) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text returned to clients for err. Internal errors
// are reduced to ErrInternal so that paths and driver messages stay in the
// logs.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if HTTPStatusCode(err) == http.StatusInternalServerError {
		return ErrInternal.Error()
	}
	return err.Error()
}
