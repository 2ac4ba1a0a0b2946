// Package apperr holds the error taxonomy shared by the chat, inventory and
// resilience layers, and the single function that turns any of them into a
// short message a person can read.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AuthenticationError means no signed-in identity could be resolved.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication required"
	}
	return e.Message
}

// PermissionError means the identity is known but lacks rights on the resource.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	if e.Message == "" {
		return "permission denied"
	}
	return e.Message
}

// ValidationError is a client-side input contract violation. It is raised
// before any storage or network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CapacityError is returned when a room already holds as many beds as its
// capacity allows.
type CapacityError struct {
	RoomID   uuid.UUID
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("room has reached its capacity of %d beds", e.Capacity)
}

// ConflictError reports a uniqueness clash, e.g. a duplicate bed number.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NotFoundError reports a missing row.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// DataError is a failure reported by the storage backend. Code carries the
// backend's error code (SQLSTATE for Postgres) when one is available.
type DataError struct {
	Code    string
	Message string
}

func (e *DataError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}

// StatusError is a failure that carries an HTTP-style status code.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// ChatError is a backend-reported chat failure that is not otherwise classified.
type ChatError struct {
	Op  string
	Err error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Op, e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }

// NetworkErrorType is the retry classification attached to a NetworkError.
type NetworkErrorType string

const (
	NetworkTypeNetwork    NetworkErrorType = "network"
	NetworkTypeTimeout    NetworkErrorType = "timeout"
	NetworkTypeServer     NetworkErrorType = "server"
	NetworkTypeAuth       NetworkErrorType = "auth"
	NetworkTypePermission NetworkErrorType = "permission"
	NetworkTypeValidation NetworkErrorType = "validation"
	NetworkTypeUnknown    NetworkErrorType = "unknown"
)

// NetworkError is the classified form of a failure as seen by the retry loop.
type NetworkError struct {
	Type       NetworkErrorType
	Retryable  bool
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Validation builds a ValidationError for field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation-class error.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ce *CapacityError
	var conflict *ConflictError
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &conflict)
}

const (
	MessageLogin      = "please log in"
	MessagePermission = "no permission"
	MessageNetwork    = "check your connection"
	MessageFallback   = "something went wrong, please try again"
)

// UserMessage converts any error into the short string shown next to the
// view that failed.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var authErr *AuthenticationError
	var permErr *PermissionError
	var netErr *NetworkError
	var notFound *NotFoundError

	switch {
	case errors.As(err, &authErr):
		return MessageLogin
	case errors.As(err, &permErr):
		return MessagePermission
	case errors.As(err, &netErr):
		switch netErr.Type {
		case NetworkTypeAuth:
			return MessageLogin
		case NetworkTypePermission:
			return MessagePermission
		case NetworkTypeNetwork, NetworkTypeTimeout, NetworkTypeServer:
			return MessageNetwork
		}
		if netErr.Err != nil && netErr.Err != err {
			return UserMessage(netErr.Err)
		}
		return MessageFallback
	case IsValidation(err):
		return validationMessage(err)
	case errors.As(err, &notFound):
		return notFound.Error()
	default:
		return MessageFallback
	}
}

func validationMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ce *CapacityError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Message
	}
	return err.Error()
}
