package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/api"
	"github.com/irfndi/optionscope/internal/config"
	"github.com/irfndi/optionscope/internal/logging"
	"github.com/irfndi/optionscope/internal/middleware"
	"github.com/irfndi/optionscope/internal/pricing"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/irfndi/optionscope/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "optionscope"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := telemetry.InitTelemetry(telemetry.FromConfig(cfg.Telemetry, cfg.Environment)); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	appLogger, otlpLogger := newAppLogger(cfg)
	if otlpLogger != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otlpLogger.Shutdown(ctx)
		}()
	}
	logger := logging.NewComponentLogger(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	client := pricing.NewClient(cfg.Pricing, pricing.WithLogger(logger))

	var opts []services.SessionManagerOption
	if b.journal != nil {
		opts = append(opts, services.WithLookupJournal(b.journal))
	}
	sessions := services.NewSessionManager(client, b.store, cfg.Session, logger, opts...)
	sessions.Start()
	defer sessions.Stop()

	db, redis := b.healthCheckers()
	router := newRouter(cfg, appLogger, api.Dependencies{
		Sessions: sessions,
		Pricing:  client,
		Breaker:  client.Breaker(),
		Database: db,
		Redis:    redis,
		Store:    b.store,
		Auth:     middleware.NewAuthMiddleware(jwtSecret(cfg, logger), cfg.Security.SessionTokenTTL),
		Admin:    middleware.NewAdminMiddleware(cfg.Security.AdminAPIKey),
		Logger:   logger,
		Version:  version,
	})
	srv := newHTTPServer(cfg.Server, router)

	serveErr := make(chan error, 1)
	go func() {
		appLogger.LogStartup(serviceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.LogShutdown(serviceName, "signal received")
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// newAppLogger returns the request logger, exporting over OTLP when
// telemetry is enabled.
func newAppLogger(cfg *config.Config) (*logging.StandardLogger, *logging.OTLPLogger) {
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Exporter != telemetry.ExporterOTLP {
		return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment), nil
	}
	return logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Endpoint:       telemetry.EndpointHostPort(cfg.Telemetry.OTLPEndpoint),
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
}

// jwtSecret returns the configured signing secret. Empty makes the auth
// middleware use a per-process key; Load only allows that in development.
func jwtSecret(cfg *config.Config, logger *logrus.Logger) string {
	if cfg.Security.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, session tokens will not survive a restart")
	}
	return cfg.Security.JWTSecret
}

func newRouter(cfg *config.Config, appLogger logging.Logger, deps api.Dependencies) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.RequestLogger(appLogger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	api.SetupRoutes(router, deps)
	return router
}

// newHTTPServer applies the configured timeouts. A zero write timeout keeps
// the event streams open.
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
