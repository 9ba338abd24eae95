package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/middleware"
	"github.com/thereayou/esim-portal/internal/websocket"
	"go.uber.org/zap"
)

type UserHandler struct {
	db     *database.Database
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewUserHandler(db *database.Database, hub *websocket.Hub, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, hub: hub, logger: logger}
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)

	user, err := h.db.GetUser(identity.ActorID)
	if err != nil {
		fail(c, http.StatusNotFound, "user not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userResponse(user),
	})
}

// GetUser возвращает информацию о пользователе по ID (админка)
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	user, err := h.db.GetUser(userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, "failed to get user")
		return
	}

	resp := userResponse(user)
	resp["isOnline"] = h.hub.IsOnline(user.ID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    resp,
	})
}

// ForceDisconnect закрывает все соединения пользователя
func (h *UserHandler) ForceDisconnect(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	closed := h.hub.Disconnect(userID)

	h.logger.Info("Sessions force-closed",
		zap.String("user_id", userID.String()),
		zap.Int("connections", closed),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"connections": closed,
	})
}
