package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/models"
)

// SendMessagePayload входящее sendMessage от пользователя
type SendMessagePayload struct {
	Text              string     `json:"text"`
	SaveToDatabase    bool       `json:"saveToDatabase"`
	IsPredefinedIssue bool       `json:"isPredefinedIssue"`
	RepliedTo         *uuid.UUID `json:"repliedTo,omitempty"`
}

// SendReplyPayload входящее sendReply от администратора
type SendReplyPayload struct {
	UserID     uuid.UUID       `json:"userId"`
	Text       string          `json:"text"`
	Attachment *AttachmentInfo `json:"attachment,omitempty"`
	RepliedTo  *uuid.UUID      `json:"repliedTo,omitempty"`
}

type TypingPayload struct {
	UserID   *uuid.UUID `json:"userId,omitempty"`
	IsTyping bool       `json:"isTyping"`
}

type MarkAsReadPayload struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
}

// ReactionPayload: userId клиента игнорируется, реагирует всегда владелец соединения
type ReactionPayload struct {
	MessageID uuid.UUID  `json:"messageId"`
	Emoji     string     `json:"emoji"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
}

type AttachmentInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

type ReactionInfo struct {
	Emoji     string    `json:"emoji"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

// MessageResponse структура для исходящих сообщений
type MessageResponse struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"userId"`
	SenderID          uuid.UUID       `json:"senderId"`
	SenderRole        models.Role     `json:"senderRole"`
	IsAdmin           bool            `json:"isAdmin"`
	Text              string          `json:"text"`
	Attachment        *AttachmentInfo `json:"attachment,omitempty"`
	Reactions         []ReactionInfo  `json:"reactions"`
	IsRead            bool            `json:"isRead"`
	IsPinned          bool            `json:"isPinned"`
	IsPredefinedIssue bool            `json:"isPredefinedIssue"`
	RepliedTo         *uuid.UUID      `json:"repliedTo,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	User              *UserInfo       `json:"user,omitempty"`
}

func NewMessageResponse(m *models.Message) MessageResponse {
	resp := MessageResponse{
		ID:                m.ID,
		UserID:            m.OwnerUserID,
		SenderID:          m.SenderID,
		SenderRole:        m.SenderRole,
		IsAdmin:           m.SenderRole == models.RoleAdmin,
		Text:              m.Text,
		Reactions:         NewReactions(m.Reactions),
		IsRead:            m.IsRead,
		IsPinned:          m.IsPinned,
		IsPredefinedIssue: m.IsPredefinedIssue,
		RepliedTo:         m.RepliedToID,
		CreatedAt:         m.CreatedAt,
	}

	if m.HasAttachment() {
		resp.Attachment = &AttachmentInfo{
			Name: m.AttachmentName,
			Type: m.AttachmentType,
			URL:  m.AttachmentURL,
		}
	}

	// Если загружена информация о пользователе
	if m.Owner.ID != uuid.Nil {
		resp.User = &UserInfo{
			ID:    m.Owner.ID,
			Name:  m.Owner.Name,
			Email: m.Owner.Email,
		}
	}

	return resp
}

func NewMessageResponses(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, len(messages))
	for i := range messages {
		out[i] = NewMessageResponse(&messages[i])
	}
	return out
}

func NewReactions(reactions []models.Reaction) []ReactionInfo {
	out := make([]ReactionInfo, len(reactions))
	for i, r := range reactions {
		out[i] = ReactionInfo{Emoji: r.Emoji, UserID: r.UserID, CreatedAt: r.CreatedAt}
	}
	return out
}

// ConversationSummary строка списка диалогов администратора
type ConversationSummary struct {
	ID          uuid.UUID   `json:"_id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	LastMessage LastMessage `json:"lastMessage"`
	UnreadCount int64       `json:"unreadCount"`
	HasUnread   bool        `json:"hasUnread"`
	IsOnline    bool        `json:"isOnline"`
	LastSeen    *time.Time  `json:"lastSeen,omitempty"`
}

type LastMessage struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	IsAdmin   bool      `json:"isAdmin"`
}
