package server

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/esim-portal/internal/config"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/models"
)

// SeedAdmin создаёт администратора из ADMIN_EMAIL/ADMIN_PASSWORD.
// Существующий пользователь с этим email повышается до админа.
func SeedAdmin(db *database.Database, cfg config.Config, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		logger.Debug("Admin seed skipped: ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}

	existing, err := db.FindUserByEmail(email)
	switch {
	case err == nil:
		if existing.IsAdmin() {
			return nil
		}
		existing.Role = models.RoleAdmin
		if err := db.UpdateUser(existing); err != nil {
			return err
		}
		logger.Info("Existing user promoted to admin", zap.String("email", email))
		return nil
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Name:         cfg.AdminName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now(),
	}
	if err := db.SaveUser(admin); err != nil {
		return err
	}

	logger.Info("Admin user created", zap.String("email", email))
	return nil
}
