package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	echoapi "go.pilab.hu/idcore/api/echo"
	"go.pilab.hu/idcore/config"
	"go.pilab.hu/idcore/log"
)

// NewRouter builds the echo instance with the middleware chain and the API
// routes.
func NewRouter(serviceName string, appLogger log.Logger, api *echoapi.API) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(echoapi.RequestLogger(appLogger))
	e.Use(echoapi.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))

	api.RegisterRoutes(e)

	return e
}

// NewHTTPServer wraps the router in an http.Server listening on HTTP_PORT.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, api *echoapi.API) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           NewRouter(cfg.OtelServiceName, appLogger, api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
