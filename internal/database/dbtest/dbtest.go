// Package dbtest поднимает in-memory SQLite базу для тестов.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func New(t testing.TB) *database.Database {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.NewDatabase(gdb)
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Close закрывает соединение, чтобы все последующие запросы падали
func Close(t testing.TB, db *database.Database) {
	t.Helper()
	sqlDB, err := db.DB().DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.Close()
}

func User(t testing.TB, db *database.Database, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := db.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

// Message сохраняет сообщение с явным временем создания
func Message(t testing.TB, db *database.Database, owner uuid.UUID, role models.Role, text string, at time.Time) *models.Message {
	t.Helper()
	m := &models.Message{
		OwnerUserID: owner,
		SenderID:    owner,
		SenderRole:  role,
		Text:        text,
		IsRead:      role == models.RoleAdmin,
		CreatedAt:   at,
	}
	if err := db.SaveMessage(m); err != nil {
		t.Fatalf("save message: %v", err)
	}
	return m
}
