package database

import (
	"errors"

	"github.com/thereayou/esim-portal/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func (d *Database) Connect(dsn string, logger *zap.Logger) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		return err
	}

	d.db = db
	if err := d.Migrate(); err != nil {
		return err
	}

	logger.Info("Connected to PostgreSQL")
	return nil
}

func (d *Database) Migrate() error {
	return d.db.AutoMigrate(&models.User{}, &models.Message{}, &models.Reaction{})
}
