package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	echoapi "go.pilab.hu/idcore/api/echo"
	"go.pilab.hu/idcore/cache"
	"go.pilab.hu/idcore/config"
	"go.pilab.hu/idcore/internal/audit"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/metrics"
	"go.pilab.hu/idcore/internal/server"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/services"
	"go.pilab.hu/idcore/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := log.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	if parseErr != nil {
		appLogger.Warn(context.Background(), "Invalid LOG_LEVEL configured, defaulting to 'info'", log.Fields{
			"configured_log_level": cfg.LogLevel,
		})
	}

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal(context.Background(), "Server failed", err)
	}
}

func run(cfg *config.ServerConfig, appLogger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Starting idcore server", log.Fields{
		"http_port":    cfg.HTTPPort,
		"store_driver": cfg.StoreDriver,
		"redis":        cfg.RedisAddr != "",
		"log_level":    cfg.LogLevel,
		"otel_enabled": cfg.OtelEnabled,
	})

	if cfg.OtelEnabled {
		tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, os.Stdout)
		if err != nil {
			return fmt.Errorf("init tracer provider: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
			}
		}()
	}

	// --- Dependencies ---
	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			appLogger.Error(context.Background(), "Store close error", err)
		}
	}()

	revocations, err := server.OpenRevocationList(ctx, cfg)
	if err != nil {
		return err
	}
	defer revocations.Close()

	keyCache := cache.NewAPIKeyCache(cfg.APIKeyCacheTTL())
	defer keyCache.Close()

	keyFiles, err := cfg.FederatedKeyFiles()
	if err != nil {
		return err
	}
	federatedKeys, err := services.LoadStaticKeyResolver(keyFiles)
	if err != nil {
		return fmt.Errorf("load federated keys: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := services.Options{
		Logger:  appLogger,
		Metrics: metrics.New(reg),
		Audit:   audit.New(os.Stdout),
	}

	hasher := auth.NewBcryptSecretHasher(bcrypt.DefaultCost)
	issuer := services.NewTokenIssuer(store, opts)
	validator := services.NewTokenValidator(store, revocations, keyCache, opts)
	clients := services.NewClientService(store.ClientRepository(), hasher, federatedKeys, opts)
	signer, err := services.NewAccessTokenSigner(cfg.Issuer, []byte(cfg.JWTSecretKey), cfg.AccessTokenTTL(), nil)
	if err != nil {
		return err
	}

	api := echoapi.NewAPI(echoapi.Services{
		Store:          store,
		Issuer:         issuer,
		Validator:      validator,
		Signup:         services.NewSignupService(store, opts),
		OneTimeAccess:  services.NewOneTimeAccessService(store, issuer, cfg.OneTimeTokenTTL(), opts),
		APIKeys:        services.NewAPIKeyService(store, issuer, validator, revocations, keyCache, opts),
		Clients:        clients,
		Refresh:        services.NewRefreshService(store, clients, validator, issuer, signer, cfg.RefreshTokenTTL(), opts),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})
	// --- End Dependencies ---

	httpServer := server.NewHTTPServer(cfg, appLogger, api)

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
	return nil
}
