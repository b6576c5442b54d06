package db

import (
	"context"
	"errors"
	"strings"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/store"
	"hradmin/internal/platform/config"
)

// Seed makes sure the configured administrator can sign in. It is a no-op
// when no seed admin is configured or the account already exists.
func Seed(ctx context.Context, provisioner store.Provisioner, cfg config.Config) error {
	email := strings.TrimSpace(cfg.SeedAdminEmail)
	if email == "" || strings.TrimSpace(cfg.SeedAdminPassword) == "" {
		return nil
	}

	name := strings.TrimSpace(cfg.SeedAdminName)
	if name == "" {
		name = "Administrator"
	}
	_, err := provisioner.CreateUser(ctx, email, cfg.SeedAdminPassword, store.Row{
		"name":      name,
		"role":      string(auth.RoleAdmin),
		"is_active": true,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	return err
}
