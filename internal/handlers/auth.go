package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/handlers/dto"
	"github.com/thereayou/esim-portal/internal/middleware"
	"github.com/thereayou/esim-portal/internal/models"
	"github.com/thereayou/esim-portal/internal/services"
)

type AuthHandler struct {
	db     *database.Database
	authn  *services.Authenticator
	logger *zap.Logger
}

func NewAuthHandler(db *database.Database, authn *services.Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, authn: authn, logger: logger}
}

// Register создаёт обычного пользователя. Администраторы заводятся только сидом.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := h.db.FindUserByEmail(email); err == nil {
		fail(c, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		h.logger.Error("Failed to check email", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create user")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, http.StatusInternalServerError, "cannot hash password")
		return
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
	}

	if err := h.db.SaveUser(user); err != nil {
		h.logger.Error("Failed to create user", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    userResponse(user),
	})
}

// Login выдаёт JWT и обновляет last_seen
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.db.FindUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			h.logger.Error("Failed to load user", zap.Error(err))
		}
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.db.UpdateLastSeen(user.ID); err != nil {
		h.logger.Warn("Failed to update last seen", zap.Error(err))
	}

	token, err := h.authn.Issue(user.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not generate token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token.Value,
		"expiresAt": token.ExpiresAt,
		"user":      userResponse(user),
	})
}

// Logout ставит токен в черный список до истечения
func (h *AuthHandler) Logout(c *gin.Context) {
	rawToken := c.GetString(middleware.TokenKey)

	if err := h.authn.Revoke(c.Request.Context(), rawToken); err != nil {
		if errors.Is(err, services.ErrAuth) {
			fail(c, http.StatusUnauthorized, "invalid token")
			return
		}
		h.logger.Error("Failed to revoke token", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to logout")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func userResponse(user *models.User) gin.H {
	resp := gin.H{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"role":      user.Role,
		"createdAt": user.CreatedAt,
	}
	if !user.LastSeenAt.IsZero() {
		resp["lastSeenAt"] = user.LastSeenAt
	}
	return resp
}
