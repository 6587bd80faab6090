package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain const errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidStatus    = errors.New("invalid status transition")
	ErrDuplicateEvent   = errors.New("duplicate event id")
	ErrChannelDisabled  = errors.New("channel disabled by user preference")
	ErrVersionConflict  = errors.New("concurrent update conflict")
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// RateLimitError is returned when a submission exceeds the per-user,
// per-channel quota. RetryAfter hints when the window rolls over.
type RateLimitError struct {
	UserLimit  int
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit %d, retry after %s)", e.UserLimit, e.RetryAfter)
}

// ProviderError carries the provider's verdict on a failed send attempt.
// Retryable failures feed the retry policy; the rest terminate in FAILED.
type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

func NewProviderError(statusCode int, message string, retryable bool) ProviderError {
	return ProviderError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
	}
}
