// Package errors provides structured error types for the playable forge pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrAuthFailure  = errors.New("authentication failed")
	ErrRateLimit    = errors.New("rate limit exceeded")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Code       string // backend-reported error code, if any
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// InsufficientCreditsError is returned when the workspace balance is below
// the minimum required to start a forge session.
type InsufficientCreditsError struct {
	Available int
	Required  int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d available, %d required", e.Available, e.Required)
}

// InvalidStyleError is returned when a generation style is not in a usable state.
type InvalidStyleError struct {
	StyleID string
	Status  string
}

func (e *InvalidStyleError) Error() string {
	return fmt.Sprintf("style %s is not ready (status %s)", e.StyleID, e.Status)
}

// UnknownMechanicError is returned when no template is registered for a mechanic.
type UnknownMechanicError struct {
	Mechanic string
}

func (e *UnknownMechanicError) Error() string {
	return fmt.Sprintf("no template registered for mechanic %q", e.Mechanic)
}

// GenerationTimeoutError is returned when polling a generation job exceeds its deadline.
type GenerationTimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation %s timed out after %s", e.JobID, e.Timeout)
}

// GenerationFailedError is returned when the backend reports a terminal failure
// for a generation job. Code carries the backend's error code.
type GenerationFailedError struct {
	JobID   string
	Code    string
	Message string
}

func (e *GenerationFailedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("generation %s failed (%s): %s", e.JobID, e.Code, e.Message)
	}
	return fmt.Sprintf("generation %s failed: %s", e.JobID, e.Message)
}

// IsModeration reports whether the failure was a content-moderation rejection.
// Moderation rejections are retried with a simplified prompt rather than verbatim.
func (e *GenerationFailedError) IsModeration() bool {
	switch e.Code {
	case "CONTENT_MODERATION", "MODERATION", "NSFW_CONTENT":
		return true
	}
	return false
}

// UnsupportedImageFormatError is returned when raw image bytes cannot be decoded.
type UnsupportedImageFormatError struct {
	Detail string
}

func (e *UnsupportedImageFormatError) Error() string {
	return fmt.Sprintf("unsupported image format: %s", e.Detail)
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Precondition failures (credits, style, unknown mechanic) and permanent
// generation failures are never retryable; moderation rejections are handled
// by the forge's prompt-simplification fallback, not blind retry.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var genErr *GenerationFailedError
	if errors.As(err, &genErr) {
		return genErr.IsModeration()
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
