package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
		code     string
	}{
		{"authentication", fmt.Errorf("%w: missing org claim", ErrAuthentication), http.StatusUnauthorized, "unauthorized"},
		{"authorization", fmt.Errorf("%w: not an owner", ErrAuthorization), http.StatusForbidden, "forbidden"},
		{"validation", fmt.Errorf("%w: name is required", ErrValidation), http.StatusBadRequest, "validation_error"},
		{"not found", ErrNotFound, http.StatusNotFound, "not_found"},
		{"conflict", ErrConflict, http.StatusConflict, "conflict"},
		{"timeout", ErrUpstreamTimeout, http.StatusGatewayTimeout, "upstream timeout"},
		{"upstream", fmt.Errorf("%w: %w", ErrUpstream, errors.New("connection refused")), http.StatusBadGateway, "upstream_error"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, HTTPStatus(tt.err))
			require.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestIsInternal(t *testing.T) {
	require.True(t, IsInternal(errors.New("db down")))
	require.False(t, IsInternal(fmt.Errorf("wrapped: %w", ErrValidation)))
}

func TestFromStatus(t *testing.T) {
	require.NoError(t, FromStatus(http.StatusOK))
	require.ErrorIs(t, FromStatus(http.StatusBadRequest), ErrValidation)
	require.ErrorIs(t, FromStatus(http.StatusForbidden), ErrAuthorization)
	require.ErrorIs(t, FromStatus(http.StatusNotFound), ErrNotFound)
	require.ErrorIs(t, FromStatus(http.StatusConflict), ErrConflict)
	require.ErrorIs(t, FromStatus(http.StatusInternalServerError), ErrUpstream)
}
