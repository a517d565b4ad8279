package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("load class: %w", ErrNotFound)
	assert.Same(t, ErrNotFound, FromError(wrapped))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	cause := errors.New("connection reset")
	got := FromError(cause)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.ErrorIs(t, got, cause)
	assert.Nil(t, FromError(nil))
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrValidation, "month is required")
	assert.Equal(t, "month is required", clone.Message)
	assert.Equal(t, ErrValidation.Code, clone.Code)
	assert.Equal(t, "validation failed", ErrValidation.Message)
	assert.Equal(t, ErrValidation.Message, Clone(ErrValidation, "").Message)
}

func TestErrorString(t *testing.T) {
	err := Wrap(errors.New("boom"), "X", http.StatusTeapot, "failed")
	assert.Equal(t, "failed: boom", err.Error())
	var nilErr *Error
	assert.Equal(t, "<nil>", nilErr.Error())
}
