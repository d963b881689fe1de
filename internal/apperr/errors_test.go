package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"app error", InvalidInput("bad"), CodeInvalidInput},
		{"wrapped app error", fmt.Errorf("resolve: %w", Unauthorized("no")), CodeUnauthorized},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), CodeUpstreamUnavailable},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}

func TestAppErrorIsMatchesCodeAndMessage(t *testing.T) {
	sentinel := Unauthorized("not a participant")
	err := Wrap(CodeUnauthorized, "not a participant", errors.New("lookup"))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, Unauthorized("something else")))
	assert.False(t, errors.Is(err, InvalidInput("not a participant")))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, CallStatus(CodeUnauthenticated))
	assert.Equal(t, http.StatusBadRequest, CallStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusBadRequest, CallStatus(CodeUpstreamUnavailable))

	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CodeUpstreamUnavailable))
	assert.True(t, Retryable(CodeUpstreamUnavailable))
	assert.False(t, Retryable(CodeResourceConflict))
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Upstream("store unavailable", errors.New("dial tcp 10.0.0.1:5432: refused"))
	assert.Equal(t, "store unavailable", PublicMessage(err))
	assert.Equal(t, "internal error", PublicMessage(errors.New("raw")))
}
