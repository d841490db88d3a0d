package errors

import (
	"errors"
	"fmt"
	"net/http"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/services"
)

// OAuth2Error represents a standardized OAuth 2.0 error body.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes
const (
	InvalidRequest       = "invalid_request"
	UnauthorizedClient   = "unauthorized_client"
	AccessDenied         = "access_denied"
	UnsupportedGrantType = "unsupported_grant_type"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	ServerError          = "server_error"
)

// Credential lifecycle codes used by the admin API.
const (
	NotFound     = "not_found"
	ExpiredToken = "expired_token"
	Exhausted    = "usage_limit_reached"
	Revoked      = "revoked"
	Conflict     = "conflict"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

// FromError maps a service error onto an HTTP status and body. Internal
// errors are not described to the caller.
func FromError(err error) (int, *OAuth2Error) {
	var oauthErr *OAuth2Error
	switch {
	case errors.As(err, &oauthErr):
		return http.StatusBadRequest, oauthErr
	case errors.Is(err, services.ErrInvalidClient):
		return http.StatusUnauthorized, NewInvalidClient("Invalid client credentials")
	case errors.Is(err, services.ErrInvalidGrant):
		return http.StatusBadRequest, NewInvalidGrant(err.Error())
	case errors.Is(err, services.ErrInvalidCallbackURL):
		return http.StatusBadRequest, NewInvalidRequest("Invalid redirect_uri")
	case errors.Is(err, services.ErrAccessCodeRequired):
		return http.StatusForbidden, &OAuth2Error{Code: AccessDenied, Description: "A valid access code is required"}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, NewInvalidRequest(err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, &OAuth2Error{Code: NotFound, Description: "Not found"}
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, &OAuth2Error{Code: ExpiredToken, Description: "The token has expired"}
	case errors.Is(err, domain.ErrExhausted):
		return http.StatusGone, &OAuth2Error{Code: Exhausted, Description: "The token has no uses left"}
	case errors.Is(err, domain.ErrRevoked):
		return http.StatusGone, &OAuth2Error{Code: Revoked, Description: "The token has been revoked"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, &OAuth2Error{Code: Conflict, Description: "The resource already exists"}
	}
	return http.StatusInternalServerError, NewServerError("Internal server error")
}
