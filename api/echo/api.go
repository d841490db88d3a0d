//nolint:varnamelen
package echo

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/errors"
	"go.pilab.hu/idcore/services"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

// GrantTypeRefreshToken is the only grant the token endpoint accepts.
const GrantTypeRefreshToken = "refresh_token"

// Services are the dependencies of the HTTP API.
type Services struct {
	Store         domain.RepositoryProvider
	Issuer        *services.TokenIssuer
	Validator     *services.TokenValidator
	Signup        *services.SignupService
	OneTimeAccess *services.OneTimeAccessService
	APIKeys       *services.APIKeyService
	Clients       *services.ClientService
	Refresh       *services.RefreshService
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// API exposes the credential lifecycle over HTTP.
type API struct {
	svc Services
}

// NewAPI initializes the API.
func NewAPI(svc Services) *API {
	return &API{svc: svc}
}

// RegisterRoutes registers all routes on e.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", a.HealthHandler)
	if a.svc.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(a.svc.MetricsHandler))
	}

	e.POST("/oauth2/token", a.TokenHandler)

	api := e.Group("/api")
	api.GET("/signup-tokens/:token", a.SignupTokenInfoHandler)
	api.POST("/signup", a.SignupHandler)
	api.POST("/one-time-access-tokens/:token", a.ConsumeOneTimeAccessHandler)
	api.POST("/tokens/validate", a.ValidateHandler)
	api.GET("/oidc/clients/:id/callback", a.CallbackHandler)

	requireKey := RequireAPIKey(a.svc.APIKeys)
	api.POST("/signup-tokens", a.CreateSignupTokenHandler, requireKey)
	api.POST("/users/:id/one-time-access-tokens", a.IssueOneTimeAccessHandler, requireKey)
	api.POST("/api-keys", a.CreateAPIKeyHandler, requireKey)
	api.DELETE("/api-keys/:id", a.RevokeAPIKeyHandler, requireKey)
}

// HealthHandler reports whether the store is reachable.
func (a *API) HealthHandler(c echo.Context) error {
	if err := a.svc.Store.Ping(c.Request().Context()); err != nil {
		log.Error().Err(err).Msg("health check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// TokenHandler implements the refresh_token grant. Client credentials are
// taken from the form or from HTTP basic auth.
func (a *API) TokenHandler(c echo.Context) error {
	if grantType := c.FormValue("grant_type"); grantType != GrantTypeRefreshToken {
		return c.JSON(http.StatusBadRequest, errors.NewUnsupportedGrantType())
	}

	refreshToken := c.FormValue("refresh_token")
	if refreshToken == "" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("refresh_token is required"))
	}

	creds := services.ClientCredentials{
		ClientID:            c.FormValue("client_id"),
		ClientSecret:        c.FormValue("client_secret"),
		ClientAssertionType: c.FormValue("client_assertion_type"),
		ClientAssertion:     c.FormValue("client_assertion"),
	}
	if id, secret, ok := c.Request().BasicAuth(); ok {
		creds.ClientID, creds.ClientSecret = id, secret
	}

	resp, err := a.svc.Refresh.Exchange(c.Request().Context(), creds, refreshToken)
	if err != nil {
		return respondError(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, resp)
}

// ValidateRequest is the body of the generic validation endpoint.
type ValidateRequest struct {
	Kind  string `json:"kind"`
	Token string `json:"token"`
}

// ValidateHandler reports the status of any credential kind. Every status,
// including NOT_FOUND, is a 200 response.
func (a *API) ValidateHandler(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}

	kind, err := domain.ParseTokenKind(req.Kind)
	if err != nil {
		return respondError(c, err)
	}

	res, err := a.svc.Validator.Validate(c.Request().Context(), kind, req.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// CallbackHandler checks a redirect URI against the client's allow-list and
// returns the matched callback.
func (a *API) CallbackHandler(c echo.Context) error {
	callback, err := a.svc.Clients.AuthorizeCallback(
		c.Request().Context(),
		c.Param("id"),
		c.QueryParam("redirect_uri"),
		c.QueryParam("access_code"),
	)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"callbackUrl": callback})
}

// CreateAPIKeyRequest is the body of POST /api/api-keys.
type CreateAPIKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreateAPIKeyResponse returns the key's plaintext, which is never shown
// again.
type CreateAPIKeyResponse struct {
	Key   string         `json:"key"`
	Token *domain.APIKey `json:"apiKey"`
}

func (a *API) CreateAPIKeyHandler(c echo.Context) error {
	var req CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}

	key, plaintext, err := a.svc.APIKeys.Create(c.Request().Context(), req.Name, req.ExpiresAt)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, CreateAPIKeyResponse{Key: plaintext, Token: key})
}

func (a *API) RevokeAPIKeyHandler(c echo.Context) error {
	key, err := a.svc.APIKeys.Revoke(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, key)
}

// RequireAPIKey rejects requests without a valid X-API-Key header and stores
// the authenticated key in the request context.
func RequireAPIKey(keys *services.APIKeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			plaintext := strings.TrimSpace(c.Request().Header.Get(APIKeyHeader))
			if plaintext == "" {
				return c.JSON(http.StatusUnauthorized, &errors.OAuth2Error{
					Code:        errors.AccessDenied,
					Description: "Missing API key",
				})
			}

			key, err := keys.Authenticate(c.Request().Context(), plaintext)
			if err != nil {
				status, body := errors.FromError(err)
				if status < http.StatusInternalServerError {
					// Unknown, expired and revoked keys look the same to the caller.
					return c.JSON(http.StatusUnauthorized, &errors.OAuth2Error{
						Code:        errors.AccessDenied,
						Description: "Invalid API key",
					})
				}
				return c.JSON(status, body)
			}

			req := c.Request()
			c.SetRequest(req.WithContext(domain.ContextWithAPIKey(req.Context(), key)))
			return next(c)
		}
	}
}

func respondError(c echo.Context, err error) error {
	status, body := errors.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, body)
}
