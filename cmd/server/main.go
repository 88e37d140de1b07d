package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"basekit/internal/api"
	"basekit/internal/config"
	"basekit/internal/db"
	"basekit/internal/db/repository"
	"basekit/internal/middleware"
	"basekit/internal/permission"
	"basekit/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file (if present)
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("could not load .env", "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	logger.Info("running migrations")
	if err := db.RunMigrations(pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	holder := permission.NewHolder(nil)
	auditRepo := repository.NewAuditRepo(pool)

	recordSvc := service.NewRecordService(holder, repository.NewRecordRepo(pool), auditRepo, logger)
	adminSvc := service.NewAdminService(repository.NewUserRepo(pool), auditRepo, logger)
	schemaSvc := service.NewSchemaService(cfg.SchemaDir, pool, holder, logger)

	logger.Info("loading schema", "dir", cfg.SchemaDir)
	if _, err := schemaSvc.Reload(ctx); err != nil {
		return fmt.Errorf("initial schema load: %w", err)
	}

	validator, err := buildValidator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure token validation: %w", err)
	}

	handler := api.NewHandler(recordSvc, adminSvc, schemaSvc, pool, logger)
	router := api.Router(handler, api.RouterOptions{
		Auth: middleware.Authenticator(validator, middleware.ClaimMapping{
			RoleClaim: cfg.Auth.RoleClaim,
			OrgClaim:  cfg.Auth.OrgClaim,
		}, logger),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildValidator picks the token validator: an external OIDC provider when an
// issuer is configured, otherwise the HS256 shared secret.
func buildValidator(ctx context.Context, cfg *config.Config) (middleware.JWTValidator, error) {
	if cfg.Auth.OIDCEnabled() {
		return middleware.NewOIDCValidator(ctx, cfg.Auth.IssuerURL, cfg.Auth.ClientID, cfg.Auth.AllowedIssuers)
	}
	return middleware.NewHS256Validator(cfg.Auth.JWTSecret, cfg.Auth.TokenLeeway)
}
