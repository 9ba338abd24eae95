package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message сообщение чата поддержки. Диалог определяется OwnerUserID:
// для ответов администратора это получатель, а не автор.
type Message struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerUserID       uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID          uuid.UUID `gorm:"type:uuid;not null"`
	SenderRole        Role      `gorm:"type:varchar(16);not null"`
	Text              string    `gorm:"not null;default:''"`
	AttachmentName    string
	AttachmentType    string
	AttachmentURL     string
	IsRead            bool       `gorm:"not null;default:false"`
	IsPinned          bool       `gorm:"not null;default:false"`
	IsPredefinedIssue bool       `gorm:"not null;default:false"`
	RepliedToID       *uuid.UUID `gorm:"type:uuid"`
	CreatedAt         time.Time  `gorm:"index"`

	// Связи
	Owner     User       `gorm:"foreignKey:OwnerUserID"`
	Reactions []Reaction `gorm:"foreignKey:MessageID"`
}

// Reaction реакция на сообщение. Дубликаты (emoji, user) не схлопываются.
type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"type:uuid;not null"`
	Emoji     string    `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time
}

func (Reaction) TableName() string {
	return "message_reactions"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (m *Message) HasAttachment() bool {
	return m.AttachmentURL != ""
}
