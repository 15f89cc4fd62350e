package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrTypeParse, "test error message")

	assert.Equal(t, ErrTypeParse, err.Type)
	assert.Equal(t, "test error message", err.Message)
	assert.NoError(t, err.Cause)
}

func TestNewf(t *testing.T) {
	err := Newf(ErrTypeConnectivity, "failed to connect to %s", "database")

	assert.Equal(t, ErrTypeConnectivity, err.Type)
	assert.Equal(t, "failed to connect to database", err.Message)
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(originalErr, ErrTypeExecution, "query execution failed")

	assert.Equal(t, ErrTypeExecution, wrappedErr.Type)
	assert.Equal(t, "query execution failed", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrapf(
		originalErr,
		ErrTypeConnectivity,
		"failed to connect to %s:%d",
		"localhost",
		5432,
	)

	assert.Equal(t, ErrTypeConnectivity, wrappedErr.Type)
	assert.Equal(t, "failed to connect to localhost:5432", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrTypeParse,
				Message: "no SQL found in answer",
			},
			expected: "parse: no SQL found in answer",
		},
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrTypeConnectivity,
				Message: "catalog query failed",
				Cause:   errors.New("dial tcp: connection refused"),
			},
			expected: "connectivity: catalog query failed (caused by: dial tcp: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(cause, ErrTypeExecution, "outer")

	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, fmt.Errorf("even further out: %w", wrapped), cause)
}

func TestIsType(t *testing.T) {
	err := New(ErrTypeRateLimit, "too many requests")

	assert.True(t, IsType(err, ErrTypeRateLimit))
	assert.False(t, IsType(err, ErrTypeTransient))
	assert.False(t, IsType(errors.New("plain"), ErrTypeRateLimit))

	wrapped := fmt.Errorf("wrapped: %w", err)
	assert.True(t, IsType(wrapped, ErrTypeRateLimit))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeSafetyBlocked, GetType(New(ErrTypeSafetyBlocked, "blocked")))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
}

func TestWithSuggestion(t *testing.T) {
	err := New(ErrTypeConfig, "missing provider").
		WithSuggestion("set PGCONVO_LLM_PROVIDER").
		WithSuggestion("or pass --provider")

	assert.Len(t, err.Suggestions, 2)
}
