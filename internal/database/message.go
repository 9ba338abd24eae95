package database

import (
	"sort"

	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/models"
	"gorm.io/gorm"
)

// ConversationSummary строка списка диалогов для администратора
type ConversationSummary struct {
	OwnerUserID  uuid.UUID
	MessageCount int64
	UnreadCount  int64
	LastMessage  models.Message
}

func orderedReactions(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

func (d *Database) SaveMessage(message *models.Message) error {
	return d.db.Omit("Owner", "Reactions").Create(message).Error
}

func (d *Database) GetMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := d.db.
		Preload("Reactions", orderedReactions).
		First(&message, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// GetConversation возвращает все сообщения диалога, старые первыми
func (d *Database) GetConversation(ownerID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.
		Where("owner_user_id = ?", ownerID).
		Order("created_at ASC").
		Preload("Owner").
		Preload("Reactions", orderedReactions).
		Find(&messages).Error
	return messages, err
}

// MarkConversationRead помечает прочитанными непрочитанные сообщения диалога,
// написанные ролью senderRole. Флаг только выставляется, никогда не сбрасывается.
func (d *Database) MarkConversationRead(ownerID uuid.UUID, senderRole models.Role) (int64, error) {
	res := d.db.Model(&models.Message{}).
		Where("owner_user_id = ? AND sender_role = ? AND is_read = ?", ownerID, senderRole, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (d *Database) SetPinned(id uuid.UUID, pinned bool) (*models.Message, error) {
	message, err := d.GetMessage(id)
	if err != nil {
		return nil, err
	}

	if message.IsPinned != pinned {
		err := d.db.Model(&models.Message{}).Where("id = ?", id).Update("is_pinned", pinned).Error
		if err != nil {
			return nil, err
		}
		message.IsPinned = pinned
	}
	return message, nil
}

func (d *Database) GetPinned(ownerID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.
		Where("owner_user_id = ? AND is_pinned = ?", ownerID, true).
		Order("created_at DESC").
		Preload("Reactions", orderedReactions).
		Find(&messages).Error
	return messages, err
}

// AddReaction добавляет реакцию и возвращает полный список реакций сообщения
func (d *Database) AddReaction(messageID, userID uuid.UUID, emoji string) ([]models.Reaction, error) {
	reaction := &models.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := d.db.Create(reaction).Error; err != nil {
		return nil, err
	}

	var reactions []models.Reaction
	err := d.db.
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, err
}

// ConversationSummaries группирует сообщения по владельцу диалога.
// Результат отсортирован по времени последнего сообщения, новые первыми.
func (d *Database) ConversationSummaries() ([]ConversationSummary, error) {
	var rows []struct {
		OwnerUserID  uuid.UUID
		MessageCount int64
		UnreadCount  int64
	}

	err := d.db.Model(&models.Message{}).
		Select(
			"owner_user_id, COUNT(*) AS message_count, "+
				"SUM(CASE WHEN sender_role = ? AND is_read = ? THEN 1 ELSE 0 END) AS unread_count",
			models.RoleUser, false,
		).
		Group("owner_user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(rows))
	for _, row := range rows {
		var last models.Message
		err := d.db.
			Where("owner_user_id = ?", row.OwnerUserID).
			Order("created_at DESC").
			First(&last).Error
		if err != nil {
			return nil, notFound(err)
		}

		summaries = append(summaries, ConversationSummary{
			OwnerUserID:  row.OwnerUserID,
			MessageCount: row.MessageCount,
			UnreadCount:  row.UnreadCount,
			LastMessage:  last,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})

	return summaries, nil
}
