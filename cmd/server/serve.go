package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"promptlab/internal/api"
	"promptlab/internal/auth"
	"promptlab/internal/config"
	"promptlab/internal/logging"
	"promptlab/internal/mcp"
	"promptlab/internal/migrations"
	"promptlab/internal/observability"
	"promptlab/internal/repository"
	"promptlab/internal/services"
	"promptlab/internal/tls"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrate bool) error {
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
		"okta_client_id", cfg.Auth.ClientID,
		"okta_domain", cfg.Auth.OktaDomain,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
		"config_file", cfg.ConfigFileUsed,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client id matches the backend client id; PKCE login from /docs will fail if the backend app requires a secret")
	}

	repo, closeStore, err := openStore(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer closeStore()

	telemetry, err := observability.NewProvider(observability.ProviderConfig{
		ServiceName:    "promptlab",
		ServiceVersion: version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		TraceWriter:    logger.Writer(),
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	telemetry.Install()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			logger.Error("Telemetry shutdown error", "error", err)
		}
	}()
	logger.Info("Telemetry initialized", "metrics_path", cfg.Telemetry.MetricsPath, "trace_exporter", cfg.Telemetry.TraceExporter)

	metrics, err := observability.NewMetrics(telemetry.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	workflows := services.NewWorkflowService(repo, logger.With("component", "workflows"), metrics)
	prompts := services.NewPromptService(repo, logger.With("component", "prompts"))
	tags := services.NewTagService(repo, logger.With("component", "tags"))
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, repo, logger.With("component", "auth"))
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	if authz.Bypass() {
		logger.Warn("Authentication bypass is active; every request runs as the local dev user")
	}

	e := newEcho(cfg, logger)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))
	e.GET("/health", api.NewHandler(repo, version).HandleHealth)
	if cfg.Telemetry.MetricsPath != "" {
		e.GET(cfg.Telemetry.MetricsPath, echo.WrapHandler(telemetry.Handler()))
	}

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, api.NewServer(workflows, prompts, tags))
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(workflows, prompts, version)
	e.Any("/mcp/*", echo.WrapHandler(authz.RequireAuth(mcpServer.Handler("/mcp"))))
	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", api.SpecHandler(cfg.Auth.OktaDomain))
	e.GET("/docs", api.SwaggerHandler(cfg.Auth.SwaggerClientID))
	e.GET("/docs/oauth2-redirect.html", api.OAuth2RedirectHandler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			generated, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				serverErrors <- fmt.Errorf("tls setup failed: %w", err)
				return
			}
			if generated {
				logger.Info("Generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

func newEcho(cfg *config.Config, logger *logging.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(logger.Writer())
	e.HTTPErrorHandler = api.ErrorHandler(logger)

	e.Use(streamingRoutes("/mcp/", logger))
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(observability.InstrumentationName))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
			)
			return nil
		},
	}))
	if cfg.Server.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.Server.RequestTimeout,
			Skipper: func(c echo.Context) bool {
				// SSE streams stay open for the life of the session.
				return c.Path() == "/mcp/*"
			},
		}))
	}
	return e
}

// streamingRoutes lifts the server write deadline for requests under
// prefix. http.Server.WriteTimeout is armed once per request and would
// otherwise cut an SSE session off after server.write_timeout.
func streamingRoutes(prefix string, logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, prefix) {
				rc := http.NewResponseController(c.Response())
				if err := rc.SetWriteDeadline(time.Time{}); err != nil {
					logger.Warn("Could not clear write deadline", "path", c.Request().URL.Path, "error", err)
				}
			}
			return next(c)
		}
	}
}

// openStore connects the configured store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrate bool) (repository.Repository, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("Using the in-memory store; data is lost on restart")
		return repository.NewMemoryRepository(), func() {}, nil
	}

	connStr := cfg.DatabaseURL()
	if migrate {
		if err := migrations.Up(connStr); err != nil {
			return nil, nil, err
		}
		logger.Info("Migrations applied")
	}

	pool, err := initDatabase(ctx, connStr, cfg.DB.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	return repository.NewPostgresRepository(pool), pool.Close, nil
}

func initDatabase(ctx context.Context, connStr string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
