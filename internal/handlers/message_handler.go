package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/handlers/dto"
	"github.com/thereayou/esim-portal/internal/metrics"
	"github.com/thereayou/esim-portal/internal/models"
	"github.com/thereayou/esim-portal/internal/websocket"
	"go.uber.org/zap"
)

var (
	errSaveFailed     = errors.New("failed to save message")
	errMarkReadFailed = errors.New("failed to mark messages as read")
	errReactionFailed = errors.New("failed to save reaction")
)

// MessageHandler разбирает события чата, пришедшие по WebSocket
type MessageHandler struct {
	db     *database.Database
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewMessageHandler(db *database.Database, hub *websocket.Hub, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		db:     db,
		hub:    hub,
		logger: logger,
	}
}

// HandleMessage вызывается из ReadPump. Ошибки sendMessage и sendReply
// отдаются отправителю своими событиями, остальные уходят как error.
func (h *MessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	var err error

	switch msg.Type {
	case websocket.TypeSendMessage:
		if err = h.handleSendMessage(client, msg); err != nil {
			client.SendMessage(websocket.TypeMessageError, errorData(err))
		}
		h.observe(msg.Type, err)
		return nil

	case websocket.TypeSendReply:
		if err = h.handleSendReply(client, msg); err != nil {
			client.SendMessage(websocket.TypeReplyError, errorData(err))
		}
		h.observe(msg.Type, err)
		return nil

	case websocket.TypeTyping:
		err = h.handleTyping(client, msg)

	case websocket.TypeMarkAsRead:
		err = h.handleMarkAsRead(client, msg)

	case websocket.TypeMessageReaction:
		err = h.handleReaction(client, msg)

	default:
		err = fmt.Errorf("%w: unknown event %q", websocket.ErrInvalidMessage, msg.Type)
		metrics.Events.WithLabelValues("unknown", "error").Inc()
		return err
	}

	h.observe(msg.Type, err)
	return err
}

func (h *MessageHandler) observe(t websocket.MessageType, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.Events.WithLabelValues(string(t), outcome).Inc()
}

func errorData(err error) map[string]interface{} {
	return map[string]interface{}{"error": err.Error()}
}

func decodeData(msg *websocket.Message, v interface{}) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%w: missing data", websocket.ErrInvalidMessage)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: %v", websocket.ErrInvalidMessage, err)
	}
	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", websocket.ErrInvalidMessage, reason)
}

func forbidden(reason string) error {
	return fmt.Errorf("%w: %s", websocket.ErrUnauthorized, reason)
}

// handleSendMessage сообщение пользователя в поддержку
func (h *MessageHandler) handleSendMessage(client *websocket.Client, msg *websocket.Message) error {
	if client.IsAdmin() {
		return forbidden("admins answer with sendReply")
	}

	var payload dto.SendMessagePayload
	if err := decodeData(msg, &payload); err != nil {
		return err
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return invalid("text is required")
	}

	message := &models.Message{
		OwnerUserID:       client.UserID,
		SenderID:          client.UserID,
		SenderRole:        models.RoleUser,
		Text:              text,
		IsPredefinedIssue: payload.IsPredefinedIssue,
		RepliedToID:       payload.RepliedTo,
		CreatedAt:         time.Now(),
	}

	if payload.SaveToDatabase {
		if err := h.db.SaveMessage(message); err != nil {
			h.logger.Error("Failed to save message",
				zap.String("user_id", client.UserID.String()),
				zap.Error(err),
			)
			return errSaveFailed
		}
	} else {
		// эфемерное сообщение: id нужен клиентам, но в БД его нет
		message.ID = uuid.New()
	}

	response := dto.NewMessageResponse(message)
	response.User = &dto.UserInfo{ID: client.UserID, Name: client.Name}

	data, err := websocket.Encode(websocket.TypeReceiveMessage, response)
	if err != nil {
		return err
	}
	h.hub.SendToRoom(websocket.AdminRoom, data)

	return client.SendMessage(websocket.TypeMessageSent, map[string]interface{}{
		"success": true,
		"saved":   payload.SaveToDatabase,
		"message": response,
	})
}

// handleSendReply ответ администратора пользователю
func (h *MessageHandler) handleSendReply(client *websocket.Client, msg *websocket.Message) error {
	if !client.IsAdmin() {
		return forbidden("only admins can reply")
	}

	var payload dto.SendReplyPayload
	if err := decodeData(msg, &payload); err != nil {
		return err
	}

	if payload.UserID == uuid.Nil {
		return invalid("userId is required")
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" && payload.Attachment == nil {
		return invalid("text or attachment is required")
	}
	if payload.Attachment != nil && payload.Attachment.URL == "" {
		return invalid("attachment url is required")
	}

	if _, err := h.db.GetUser(payload.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return invalid("unknown user")
		}
		h.logger.Error("Failed to load reply target", zap.Error(err))
		return errSaveFailed
	}

	message := &models.Message{
		OwnerUserID: payload.UserID,
		SenderID:    client.UserID,
		SenderRole:  models.RoleAdmin,
		Text:        text,
		IsRead:      true,
		RepliedToID: payload.RepliedTo,
		CreatedAt:   time.Now(),
	}
	if a := payload.Attachment; a != nil {
		message.AttachmentName = a.Name
		message.AttachmentType = a.Type
		message.AttachmentURL = a.URL
	}

	if err := h.db.SaveMessage(message); err != nil {
		h.logger.Error("Failed to save reply",
			zap.String("admin_id", client.UserID.String()),
			zap.String("user_id", payload.UserID.String()),
			zap.Error(err),
		)
		return errSaveFailed
	}

	response := dto.NewMessageResponse(message)

	data, err := websocket.Encode(websocket.TypeReceiveReply, response)
	if err != nil {
		return err
	}
	h.hub.SendToRoom(websocket.UserRoom(payload.UserID), data)

	return client.SendMessage(websocket.TypeReplySent, map[string]interface{}{
		"success": true,
		"reply":   response,
	})
}

func (h *MessageHandler) handleTyping(client *websocket.Client, msg *websocket.Message) error {
	var payload dto.TypingPayload
	if err := decodeData(msg, &payload); err != nil {
		return err
	}

	if !client.IsAdmin() {
		data, err := websocket.Encode(websocket.TypeUserTyping, map[string]interface{}{
			"userId":   client.UserID,
			"userName": client.Name,
			"isTyping": payload.IsTyping,
		})
		if err != nil {
			return err
		}
		h.hub.SendToRoom(websocket.AdminRoom, data)
		return nil
	}

	if payload.UserID == nil || *payload.UserID == uuid.Nil {
		return invalid("userId is required")
	}

	data, err := websocket.Encode(websocket.TypeAdminTyping, map[string]interface{}{
		"adminId":  client.UserID,
		"isTyping": payload.IsTyping,
	})
	if err != nil {
		return err
	}
	h.hub.SendToRoom(websocket.UserRoom(*payload.UserID), data)
	return nil
}

// handleMarkAsRead помечает прочитанными сообщения другой стороны
// и уведомляет её об этом
func (h *MessageHandler) handleMarkAsRead(client *websocket.Client, msg *websocket.Message) error {
	var payload dto.MarkAsReadPayload
	if len(msg.Data) > 0 {
		if err := decodeData(msg, &payload); err != nil {
			return err
		}
	}

	owner := client.UserID
	senderRole := models.RoleAdmin
	room := websocket.AdminRoom

	if client.IsAdmin() {
		if payload.UserID == nil || *payload.UserID == uuid.Nil {
			return invalid("userId is required")
		}
		owner = *payload.UserID
		senderRole = models.RoleUser
		room = websocket.UserRoom(owner)
	}

	updated, err := h.db.MarkConversationRead(owner, senderRole)
	if err != nil {
		h.logger.Error("Failed to mark messages as read",
			zap.String("conversation", owner.String()),
			zap.Error(err),
		)
		return errMarkReadFailed
	}

	h.logger.Debug("Messages marked as read",
		zap.String("conversation", owner.String()),
		zap.Int64("updated", updated),
	)

	data, err := websocket.Encode(websocket.TypeMessagesRead, map[string]interface{}{
		"readBy":    client.UserID,
		"userId":    owner,
		"timestamp": time.Now(),
	})
	if err != nil {
		return err
	}
	h.hub.SendToRoom(room, data)
	return nil
}

func (h *MessageHandler) handleReaction(client *websocket.Client, msg *websocket.Message) error {
	var payload dto.ReactionPayload
	if err := decodeData(msg, &payload); err != nil {
		return err
	}

	emoji := strings.TrimSpace(payload.Emoji)
	if payload.MessageID == uuid.Nil || emoji == "" {
		return invalid("messageId and emoji are required")
	}

	message, err := h.db.GetMessage(payload.MessageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return invalid("message not found")
		}
		h.logger.Error("Failed to load message for reaction", zap.Error(err))
		return errReactionFailed
	}

	// Пользователь реагирует только в своём диалоге
	if !client.IsAdmin() && message.OwnerUserID != client.UserID {
		return forbidden("message belongs to another conversation")
	}

	reactions, err := h.db.AddReaction(message.ID, client.UserID, emoji)
	if err != nil {
		h.logger.Error("Failed to save reaction",
			zap.String("message_id", message.ID.String()),
			zap.Error(err),
		)
		return errReactionFailed
	}

	data, err := websocket.Encode(websocket.TypeMessageReaction, map[string]interface{}{
		"messageId": message.ID,
		"userId":    message.OwnerUserID,
		"reactions": dto.NewReactions(reactions),
	})
	if err != nil {
		return err
	}
	h.hub.SendToRooms(data, websocket.UserRoom(message.OwnerUserID), websocket.AdminRoom)
	return nil
}
