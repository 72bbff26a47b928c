package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an application error
type Code string

const (
	CodeCanvasNotFound     Code = "CANVAS_NOT_FOUND"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeVersionConflict    Code = "VERSION_CONFLICT"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenExhausted     Code = "TOKEN_EXHAUSTED"
	CodeRoomFull           Code = "ROOM_FULL"
	CodeCollaboratorExists Code = "COLLABORATOR_EXISTS"
	CodeCapacityExceeded   Code = "CAPACITY_EXCEEDED"
	CodeCannotModifyOwner  Code = "CANNOT_MODIFY_OWNER"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error carries a code, a caller-facing message and an HTTP status
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an application error
func New(code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap attaches a cause to an application error
func Wrap(err error, code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

// Taxonomy constructors

func CanvasNotFound(id string) *Error {
	return New(CodeCanvasNotFound, fmt.Sprintf("canvas %s not found", id), http.StatusNotFound)
}

func PermissionDenied(message string) *Error {
	return New(CodePermissionDenied, message, http.StatusForbidden)
}

func VersionConflict(expected, actual int64) *Error {
	return New(CodeVersionConflict,
		fmt.Sprintf("version conflict: expected %d, stored %d", expected, actual),
		http.StatusConflict)
}

func TokenExpired() *Error {
	return New(CodeTokenExpired, "share link has expired", http.StatusGone)
}

func TokenExhausted() *Error {
	return New(CodeTokenExhausted, "share link is no longer valid", http.StatusGone)
}

func RoomFull(max int) *Error {
	return New(CodeRoomFull, fmt.Sprintf("canvas already has %d active sessions", max), http.StatusTooManyRequests)
}

func CollaboratorExists() *Error {
	return New(CodeCollaboratorExists, "collaborator already exists", http.StatusConflict)
}

func CapacityExceeded(max int) *Error {
	return New(CodeCapacityExceeded, fmt.Sprintf("canvas is limited to %d collaborators", max), http.StatusConflict)
}

func CannotModifyOwner() *Error {
	return New(CodeCannotModifyOwner, "the owner's permission cannot be changed", http.StatusForbidden)
}

func InvalidInput(message string) *Error {
	return New(CodeInvalidInput, message, http.StatusBadRequest)
}

func Internal(err error) *Error {
	return Wrap(err, CodeInternal, "internal error", http.StatusInternalServerError)
}

// HTTPStatus maps any error to an HTTP status (500 for unknown errors)
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the application code, or CodeInternal for unknown errors
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
