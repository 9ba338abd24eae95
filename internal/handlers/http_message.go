package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/handlers/dto"
	"github.com/thereayou/esim-portal/internal/middleware"
	"github.com/thereayou/esim-portal/internal/models"
	"github.com/thereayou/esim-portal/internal/storage"
	"github.com/thereayou/esim-portal/internal/websocket"
	"go.uber.org/zap"
)

// HTTPMessageHandler REST API истории чата
type HTTPMessageHandler struct {
	db     *database.Database
	hub    *websocket.Hub
	files  storage.FileStore
	logger *zap.Logger
}

func NewHTTPMessageHandler(db *database.Database, hub *websocket.Hub, files storage.FileStore, logger *zap.Logger) *HTTPMessageHandler {
	return &HTTPMessageHandler{
		db:     db,
		hub:    hub,
		files:  files,
		logger: logger,
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// GetOwnConversation GET /conversation/self
func (h *HTTPMessageHandler) GetOwnConversation(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)

	messages, err := h.db.GetConversation(identity.ActorID)
	if err != nil {
		h.logger.Error("Failed to load conversation", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to get messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": dto.NewMessageResponses(messages),
	})
}

// GetConversation GET /conversation/:userId, только для админа.
// Открытие диалога помечает сообщения пользователя прочитанными.
func (h *HTTPMessageHandler) GetConversation(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	messages, err := h.db.GetConversation(userID)
	if err != nil {
		h.logger.Error("Failed to load conversation", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to get messages")
		return
	}

	if _, err := h.db.MarkConversationRead(userID, models.RoleUser); err != nil {
		// история уже загружена, отметка прочтения не критична
		h.logger.Warn("Failed to mark conversation read",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": dto.NewMessageResponses(messages),
	})
}

// GetConversations GET /conversations: список диалогов для админки
func (h *HTTPMessageHandler) GetConversations(c *gin.Context) {
	summaries, err := h.db.ConversationSummaries()
	if err != nil {
		h.logger.Error("Failed to aggregate conversations", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to get conversations")
		return
	}

	ids := make([]uuid.UUID, len(summaries))
	for i, s := range summaries {
		ids[i] = s.OwnerUserID
	}

	users, err := h.db.GetUsers(ids)
	if err != nil {
		h.logger.Error("Failed to load conversation owners", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to get conversations")
		return
	}

	result := make([]dto.ConversationSummary, 0, len(summaries))
	for _, s := range summaries {
		user, ok := users[s.OwnerUserID]
		if !ok {
			// сообщения остались от удалённого пользователя
			h.logger.Warn("Conversation owner not found", zap.String("user_id", s.OwnerUserID.String()))
			continue
		}

		item := dto.ConversationSummary{
			ID:    s.OwnerUserID,
			Name:  user.Name,
			Email: user.Email,
			LastMessage: dto.LastMessage{
				Text:      s.LastMessage.Text,
				CreatedAt: s.LastMessage.CreatedAt,
				IsAdmin:   s.LastMessage.SenderRole == models.RoleAdmin,
			},
			UnreadCount: s.UnreadCount,
			HasUnread:   s.UnreadCount > 0,
			IsOnline:    h.hub.IsOnline(s.OwnerUserID),
		}
		if !user.LastSeenAt.IsZero() {
			lastSeen := user.LastSeenAt
			item.LastSeen = &lastSeen
		}

		result = append(result, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": result,
	})
}

// MarkRead PUT /mark-read: пользователь прочитал ответы поддержки
func (h *HTTPMessageHandler) MarkRead(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)

	updated, err := h.db.MarkConversationRead(identity.ActorID, models.RoleAdmin)
	if err != nil {
		h.logger.Error("Failed to mark messages read", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to mark messages as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"updated": updated,
	})
}

type pinRequest struct {
	MessageID string `json:"messageId" binding:"required"`
}

func (h *HTTPMessageHandler) Pin(c *gin.Context) {
	h.setPinned(c, true)
}

func (h *HTTPMessageHandler) Unpin(c *gin.Context) {
	h.setPinned(c, false)
}

func (h *HTTPMessageHandler) setPinned(c *gin.Context, pinned bool) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "messageId is required")
		return
	}

	id, err := uuid.Parse(req.MessageID)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid messageId")
		return
	}

	message, err := h.db.SetPinned(id, pinned)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound, "message not found")
			return
		}
		h.logger.Error("Failed to update pin", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to update message")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": dto.NewMessageResponse(message),
	})
}

// GetPinned GET /pinned/:userId, новые первыми
func (h *HTTPMessageHandler) GetPinned(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	messages, err := h.db.GetPinned(userID)
	if err != nil {
		h.logger.Error("Failed to load pinned messages", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to get pinned messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": dto.NewMessageResponses(messages),
	})
}

// ExportConversation отдаёт историю диалога файлом chat-history-{userId}.json
func (h *HTTPMessageHandler) ExportConversation(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	user, err := h.db.GetUser(userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, "failed to export conversation")
		return
	}

	messages, err := h.db.GetConversation(userID)
	if err != nil {
		h.logger.Error("Failed to export conversation", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to export conversation")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-history-%s.json"`, userID))
	c.JSON(http.StatusOK, gin.H{
		"user": dto.UserInfo{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
		"exportedAt":   time.Now(),
		"messageCount": len(messages),
		"messages":     dto.NewMessageResponses(messages),
	})
}

// SendWithAttachment POST /attachment: multipart userId, text, attachment.
// Сообщение только сохраняется, в реальном времени не рассылается.
func (h *HTTPMessageHandler) SendWithAttachment(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)

	if h.files == nil {
		fail(c, http.StatusServiceUnavailable, "file storage not configured")
		return
	}

	userID, err := uuid.Parse(c.PostForm("userId"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid userId")
		return
	}

	file, err := c.FormFile("attachment")
	if err != nil {
		fail(c, http.StatusBadRequest, "attachment is required")
		return
	}

	if _, err := h.db.GetUser(userID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, "failed to send message")
		return
	}

	stored, err := h.files.Upload(c.Request.Context(), file)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) || errors.Is(err, storage.ErrEmptyFile) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to upload attachment", zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to upload attachment")
		return
	}

	message := &models.Message{
		OwnerUserID:    userID,
		SenderID:       identity.ActorID,
		SenderRole:     models.RoleAdmin,
		Text:           strings.TrimSpace(c.PostForm("text")),
		AttachmentName: stored.Name,
		AttachmentType: stored.Type,
		AttachmentURL:  stored.URL,
		CreatedAt:      time.Now(),
	}

	if err := h.db.SaveMessage(message); err != nil {
		h.logger.Error("Failed to save attachment message", zap.Error(err))
		if err := h.files.Delete(c.Request.Context(), stored.ObjectName); err != nil {
			h.logger.Warn("Failed to remove orphaned attachment",
				zap.String("object_name", stored.ObjectName),
				zap.Error(err),
			)
		}
		fail(c, http.StatusInternalServerError, "failed to send message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": dto.NewMessageResponse(message),
	})
}
