package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetTypeAndCode(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		typ  ErrorType
		code int
	}{
		{"configuration", NewConfigurationError("unknown type"), TypeConfiguration, http.StatusInternalServerError},
		{"remote", NewRemoteServiceError("discord rejected", `{"code":50001}`, nil), TypeRemoteService, http.StatusBadGateway},
		{"validation", NewValidationError("bad"), TypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("gone"), TypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("busy"), TypeConflict, http.StatusConflict},
		{"forbidden", NewForbiddenError("no"), TypeForbidden, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestGetThroughWrapping(t *testing.T) {
	cause := errors.New("socket closed")
	remote := NewRemoteServiceError("post failed", "body", cause)
	wrapped := fmt.Errorf("dispatch: %w", remote)

	got := Get(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, "body", got.Details)
	assert.True(t, Is(wrapped, TypeRemoteService))
	assert.False(t, Is(wrapped, TypeValidation))
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, Get(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not_found: ticket missing", NewNotFoundError("ticket missing").Error())
	assert.Equal(t, "validation_error: bad (age)", NewValidationError("bad", "age").Error())
}
