package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/services"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", services.ErrInvalidClient), http.StatusUnauthorized, InvalidClient},
		{fmt.Errorf("%w: reused", services.ErrInvalidGrant), http.StatusBadRequest, InvalidGrant},
		{services.ErrInvalidCallbackURL, http.StatusBadRequest, InvalidRequest},
		{services.ErrAccessCodeRequired, http.StatusForbidden, AccessDenied},
		{fmt.Errorf("%w: bad", domain.ErrInvalidInput), http.StatusBadRequest, InvalidRequest},
		{fmt.Errorf("signup token: %w", domain.ErrNotFound), http.StatusNotFound, NotFound},
		{fmt.Errorf("signup token: %w", domain.ErrExpired), http.StatusGone, ExpiredToken},
		{fmt.Errorf("signup token: %w", domain.ErrExhausted), http.StatusGone, Exhausted},
		{domain.ErrRevoked, http.StatusGone, Revoked},
		{domain.ErrConflict, http.StatusConflict, Conflict},
		{NewUnsupportedGrantType(), http.StatusBadRequest, UnsupportedGrantType},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, body := FromError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
		})
	}

	_, body := FromError(fmt.Errorf("dial tcp 10.0.0.1: refused"))
	assert.NotContains(t, body.Description, "10.0.0.1")
}
