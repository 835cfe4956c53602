package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// DatabaseErrorMessage describes SQL store failures.
	DatabaseErrorMessage = "database operation failed"
	// ModelErrorMessage describes chat model invocation failures.
	ModelErrorMessage = "language model invocation failed"
)

var (
	// ErrProfileNotFound is returned by profile stores when no profile exists for a user id.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrSessionLocked is returned when a session lock cannot be acquired in time.
	ErrSessionLocked = errors.New("session is locked by another turn")
	// ErrInvalidTransition is returned when a phase change violates the transition table.
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapDB wraps a SQL store error. Profile lookups map to 404 so transports can
// tell a missing user apart from an unavailable database.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProfileNotFound) {
		return New(err, http.StatusNotFound, ErrProfileNotFound.Error())
	}
	return New(err, http.StatusBadGateway, DatabaseErrorMessage)
}

// WrapModel wraps a chat model failure after retries are exhausted.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusServiceUnavailable, ModelErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
