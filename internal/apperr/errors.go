// Package apperr carries the service's error taxonomy across layers.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError carrying the same code, so sentinels such as
// ErrNotParticipant can be compared with errors.Is after wrapping.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code && (other.Message == "" || other.Message == e.Message)
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidInput(msg string) error {
	return New(CodeInvalidInput, msg)
}

func Unauthenticated(msg string) error {
	return New(CodeUnauthenticated, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthorized, msg)
}

func Inactive(msg string) error {
	return New(CodeResourceInactive, msg)
}

func Conflict(msg string) error {
	return New(CodeResourceConflict, msg)
}

// Upstream wraps a store, cache or signer failure. Context deadlines and
// cancellations land here too so callers see them as retryable.
func Upstream(msg string, cause error) error {
	return Wrap(CodeUpstreamUnavailable, msg, cause)
}

// CodeOf extracts the code from err, treating context errors as upstream
// failures and anything unclassified as internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeUpstreamUnavailable
	}
	return CodeInternal
}

// PublicMessage is the text safe to show a client: the AppError message
// without its cause chain.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
