package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorUsesTemplate(t *testing.T) {
	err := NewError(ErrInvalidLevel)

	assert.Equal(t, ErrInvalidLevel, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "Level must be greater than or equal to 1.", err.Message)
}

func TestNewErrorDefaultsStatusToOK(t *testing.T) {
	err := NewError(ErrMessageEmpty)
	assert.Equal(t, http.StatusOK, err.Status)
}

func TestNewErrorFormatsDetails(t *testing.T) {
	err := NewError(ErrMessageContentTooLong, 5000)
	assert.Equal(t, "Message is too long (max 5000 bytes).", err.Message)
}

func TestNewErrorUnknownCode(t *testing.T) {
	err := NewError(987654)
	assert.Equal(t, ErrUnknown, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrWriteFailure, cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")

	wrapped := fmt.Errorf("send: %w", err)
	assert.True(t, HasCode(wrapped, ErrWriteFailure))
	assert.False(t, HasCode(wrapped, ErrReadFailure))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	plain := errors.New("boom")
	assert.Equal(t, ErrUnknown, From(plain).Code)

	custom := NewError(ErrUnauthorized)
	assert.Same(t, custom, From(fmt.Errorf("ctx: %w", custom)))
}
