package echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/idcore/errors"
	"go.pilab.hu/idcore/services"
)

// CreateSignupTokenRequest is the body of POST /api/signup-tokens.
type CreateSignupTokenRequest struct {
	// TTL is a Go duration string such as "72h".
	TTL        string `json:"ttl"`
	UsageLimit int    `json:"usageLimit"`
}

func (a *API) CreateSignupTokenHandler(c echo.Context) error {
	var req CreateSignupTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}

	ttl, err := time.ParseDuration(req.TTL)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("ttl must be a duration like 24h"))
	}

	token, err := a.svc.Issuer.IssueSignupToken(c.Request().Context(), ttl, req.UsageLimit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, token)
}

func (a *API) SignupTokenInfoHandler(c echo.Context) error {
	info, err := a.svc.Signup.Info(c.Request().Context(), c.Param("token"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// SignupHandler redeems a signup token and creates the user.
func (a *API) SignupHandler(c echo.Context) error {
	var req services.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}

	user, err := a.svc.Signup.Signup(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (a *API) IssueOneTimeAccessHandler(c echo.Context) error {
	token, err := a.svc.OneTimeAccess.Issue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, token)
}

// ConsumeOneTimeAccessHandler exchanges a one-time token for its user. The
// token cannot be used again.
func (a *API) ConsumeOneTimeAccessHandler(c echo.Context) error {
	user, err := a.svc.OneTimeAccess.Consume(c.Request().Context(), c.Param("token"))
	if err != nil {
		status, body := errors.FromError(err)
		if status == http.StatusGone || status == http.StatusNotFound {
			status = http.StatusUnauthorized
		}
		return c.JSON(status, body)
	}
	return c.JSON(http.StatusOK, user)
}
