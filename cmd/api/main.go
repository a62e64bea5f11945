package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"loginway/internal/auth"
	"loginway/internal/config"
	transporthttp "loginway/internal/http"
	"loginway/internal/platform/database"
	"loginway/internal/platform/logging"
	"loginway/internal/platform/metrics"
	"loginway/internal/platform/migrate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	repo, cleanup, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	opts := []auth.ServiceOption{
		auth.WithMetrics(collector),
		auth.WithLogger(logger),
	}

	var google *auth.GoogleVerifier
	if cfg.GoogleEnabled() {
		validator, err := auth.NewOIDCTokenValidator(ctx, auth.GoogleIssuer)
		if err != nil {
			logger.Error("failed to initialize google verifier", "error", err)
			os.Exit(1)
		}
		google = auth.NewGoogleVerifier(validator, cfg.Google())
		opts = append(opts, auth.WithGoogle(google))
		logger.Info("google sign-in enabled", "web_flow", google.WebFlowEnabled())
	} else {
		logger.Warn("google sign-in disabled: no client id configured")
	}

	apple, err := buildAppleVerifier(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize apple verifier", "error", err)
		os.Exit(1)
	}
	opts = append(opts, auth.WithApple(apple))

	identities := auth.NewRegistry(repo)
	sessions := auth.NewSessionStore(repo, cfg.SessionTTL, auth.WithSessionMetrics(collector))
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	svc, err := auth.NewService(identities, sessions, hasher, opts...)
	if err != nil {
		logger.Error("failed to initialize auth service", "error", err)
		os.Exit(1)
	}

	if err := seedDevAccount(ctx, cfg, identities, hasher, logger); err != nil {
		logger.Error("failed to seed development account", "error", err)
		os.Exit(1)
	}

	go svc.RunSessionCleanup(ctx, cfg.SessionCleanupInterval)

	router := transporthttp.NewRouter(cfg, transporthttp.RouterDeps{
		Service: svc,
		Metrics: metrics.Handler(registry),
		Logger:  logger,
		Google:  google,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("loginway listening",
			"addr", srv.Addr,
			"store", cfg.DataStore,
			"delivery", cfg.SessionDelivery,
			"session_ttl", cfg.SessionTTL.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.Repository, func(), error) {
	switch cfg.DataStore {
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Apply(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return auth.NewSQLRepository(db), func() { _ = db.Close() }, nil
	case "sqlite":
		db, err := database.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Apply(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("opened sqlite database", "path", cfg.SQLitePath)
		return auth.NewSQLRepository(db), func() { _ = db.Close() }, nil
	default:
		logger.Info("using in-memory repository")
		return auth.NewInMemoryRepository(), nil, nil
	}
}

func buildAppleVerifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (*auth.AppleVerifier, error) {
	if cfg.AppleVerification == config.AppleJWKS {
		logger.Info("apple sign-in verifies signatures", "jwks_url", cfg.AppleJWKSURL)
		return auth.NewAppleJWKSVerifier(ctx, cfg.AppleJWKSURL, cfg.AppleClientID, cfg.VerifyTimeout, logger)
	}
	logger.Warn("apple sign-in accepts identity tokens without signature verification")
	return auth.NewUnverifiedAppleVerifier(), nil
}
