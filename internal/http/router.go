package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"loginway/internal/auth"
	"loginway/internal/config"
)

// RouterDeps bundles the collaborators the router wires together.
type RouterDeps struct {
	Service *auth.Service
	Metrics http.Handler
	Logger  *slog.Logger

	// Google is nil when no Google audience is configured.
	Google *auth.GoogleVerifier
}

// NewBinderFromConfig builds the session transport binder from configuration.
func NewBinderFromConfig(cfg config.Config) *Binder {
	return NewBinder(CookiePolicy{
		Name:   cfg.SessionCookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}, DeliveryMode(cfg.SessionDelivery))
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, deps RouterDeps) http.Handler {
	logger := deps.Logger
	binder := NewBinderFromConfig(cfg)
	authenticator := NewRequestAuthenticator(binder, deps.Service, logger)
	authHandler := NewAuthHandler(deps.Service, binder, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newRecoverMiddleware(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(newSecurityHeadersMiddleware(cfg.IsDevelopment()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", sessionHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/google", authHandler.Google)
		r.Post("/apple", authHandler.Apple)
		r.Post("/password/login", authHandler.PasswordLogin)
		r.Post("/password/signup", authHandler.SignUp)
		r.Post("/logout", authHandler.Logout)

		r.With(authenticator.RequireSession).Get("/whoami", authHandler.WhoAmI)

		if deps.Google != nil && deps.Google.WebFlowEnabled() {
			oauthHandler := NewOAuthHandler(deps.Google, deps.Service, binder, cfg.FrontendURL, cfg.CookieSecure, logger)
			r.Get("/google/start", oauthHandler.Start)
			r.Get("/google/callback", oauthHandler.Callback)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})

	return r
}
