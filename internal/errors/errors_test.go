package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("layer", 403, "forbidden")
	assert.Contains(t, err.Error(), "layer")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestAPIError_WithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{Service: "layer", StatusCode: 500, Message: "fail", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("layer", 429, "rate limit")))
	assert.True(t, IsRetryable(NewAPIError("layer", 502, "bad gateway")))
	assert.True(t, IsRetryable(NewAPIError("layer", 503, "unavailable")))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrUnavailable))

	assert.False(t, IsRetryable(NewAPIError("layer", 401, "unauth")))
	assert.False(t, IsRetryable(NewAPIError("layer", 404, "not found")))
	assert.False(t, IsRetryable(ErrAuthFailure))
	assert.False(t, IsRetryable(&InsufficientCreditsError{Available: 10, Required: 50}))
	assert.False(t, IsRetryable(&InvalidStyleError{StyleID: "s1", Status: "TRAINING"}))
}

func TestIsRetryable_GenerationFailed(t *testing.T) {
	moderated := &GenerationFailedError{JobID: "job-1", Code: "CONTENT_MODERATION", Message: "rejected"}
	assert.True(t, moderated.IsModeration())
	assert.True(t, IsRetryable(moderated))

	permanent := &GenerationFailedError{JobID: "job-2", Code: "INVALID_PROMPT", Message: "rejected"}
	assert.False(t, permanent.IsModeration())
	assert.False(t, IsRetryable(permanent))
}

func TestInsufficientCreditsError_Message(t *testing.T) {
	err := &InsufficientCreditsError{Available: 10, Required: 50}
	assert.Contains(t, err.Error(), "10 available")
	assert.Contains(t, err.Error(), "50 required")
}

func TestGenerationTimeoutError_Message(t *testing.T) {
	err := &GenerationTimeoutError{JobID: "inf-9", Timeout: 60 * time.Second}
	assert.Contains(t, err.Error(), "inf-9")
	assert.Contains(t, err.Error(), "1m0s")
}

func TestUnknownMechanicError_Message(t *testing.T) {
	err := &UnknownMechanicError{Mechanic: "racing"}
	assert.Contains(t, err.Error(), `"racing"`)
}

func TestSentinelErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrTimeout, ErrTimeout))
	assert.False(t, errors.Is(ErrTimeout, ErrAuthFailure))
}
