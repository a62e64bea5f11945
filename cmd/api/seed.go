package main

import (
	"context"
	"errors"
	"log/slog"

	"loginway/internal/auth"
	"loginway/internal/config"
)

// seedDevAccount creates the development password account named in the
// configuration so a fresh in-memory gateway has someone to log in as.
func seedDevAccount(ctx context.Context, cfg config.Config, registry *auth.Registry, hasher auth.PasswordHasher, logger *slog.Logger) error {
	if !cfg.SeedEnabled() {
		return nil
	}

	hash, err := hasher.Hash(cfg.SeedPassword)
	if err != nil {
		return err
	}

	user, err := registry.Create(ctx, cfg.SeedEmail, hash, "Development User")
	if errors.Is(err, auth.ErrEmailExists) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("seeded development account", "user_id", user.ID, "email", user.Email)
	return nil
}
