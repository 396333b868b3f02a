package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{BadRequest("x"), http.StatusBadRequest},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{TooManyRequests("x"), http.StatusTooManyRequests},
		{Unavailable("x"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.Status)
		assert.Equal(t, "x", tt.err.Error())
	}
}

func TestWrapAndAs(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("load post: %w", Internal("Failed to load post", cause))

	assert.ErrorIs(t, err, cause)

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, "Failed to load post", appErr.Message)
	assert.Equal(t, "Failed to load post: dial tcp: refused", appErr.Error())

	_, ok = As(cause)
	assert.False(t, ok)
}
