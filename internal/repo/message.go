package repo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"shoptalk/pkg/models"
)

// MessageRepository handles message data access
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// GetByID gets a message by ID and tenant
func (r *MessageRepository) GetByID(tenantID, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// GetByChannelMessageID gets a message by its provider-assigned ID
func (r *MessageRepository) GetByChannelMessageID(tenantID uuid.UUID, channelMessageID string) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("tenant_id = ? AND channel_message_id = ?", tenantID, channelMessageID).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// Append inserts a message into the conversation log, deduplicating on
// channel_message_id. Returns the stored row and whether this call created
// it; a redelivered webhook gets (existing row, false) and must not trigger
// any further processing.
func (r *MessageRepository) Append(message *models.Message) (*models.Message, bool, error) {
	if message.ChannelMessageID != "" {
		var existing models.Message
		err := r.db.Where("tenant_id = ? AND channel_message_id = ?",
			message.TenantID, message.ChannelMessageID).First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	err := r.db.Create(message).Error
	if err == nil {
		return message, true, nil
	}
	if message.ChannelMessageID == "" || !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}

	// Concurrent redelivery won the insert; return its row
	var winner models.Message
	if err := r.db.Where("tenant_id = ? AND channel_message_id = ?",
		message.TenantID, message.ChannelMessageID).First(&winner).Error; err != nil {
		return nil, false, err
	}
	log.Debug().
		Str("channel_message_id", message.ChannelMessageID).
		Msg("Duplicate message insert resolved to existing row")
	return &winner, false, nil
}

// UpdateStatusByChannelMessageID applies a delivery status callback. The
// lookup is global: provider message IDs are globally unique and status
// callbacks carry no tenant. Status only moves forward: pending < sent <
// delivered < read, with failed terminal from any non-terminal state.
// Out-of-order callbacks are ignored, not errors.
func (r *MessageRepository) UpdateStatusByChannelMessageID(channelMessageID string, status models.MessageStatus, reason string) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("channel_message_id = ?", channelMessageID).First(&message).Error
	if err != nil {
		return nil, err
	}

	if !allowTransition(message.Status, status) {
		log.Debug().
			Str("channel_message_id", channelMessageID).
			Str("current", string(message.Status)).
			Str("incoming", string(status)).
			Msg("Ignoring out-of-order status callback")
		return &message, nil
	}

	now := time.Now()
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.StatusSent:
		updates["sent_at"] = now
	case models.StatusDelivered:
		updates["delivered_at"] = now
	case models.StatusRead:
		updates["read_at"] = now
	case models.StatusFailed:
		updates["failed_at"] = now
		if reason != "" {
			updates["failure_reason"] = reason
		}
	}

	if err := r.db.Model(&message).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// allowTransition implements the monotonic status lattice
func allowTransition(current, incoming models.MessageStatus) bool {
	if current.Terminal() {
		return false
	}
	if incoming == models.StatusFailed {
		return true
	}
	currentRank, ok := current.Rank()
	if !ok {
		return false
	}
	incomingRank, ok := incoming.Rank()
	if !ok {
		return false
	}
	return incomingRank > currentRank
}

// ListByConversation lists messages in a conversation in insertion order
func (r *MessageRepository) ListByConversation(tenantID, conversationID uuid.UUID, limit, offset int) (models.PaginationResult[models.Message], error) {
	var messages []models.Message
	var total int64

	if err := r.db.Model(&models.Message{}).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Count(&total).Error; err != nil {
		return models.PaginationResult[models.Message]{}, err
	}

	err := r.db.Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return models.PaginationResult[models.Message]{}, err
	}

	return paginate(messages, total, limit, offset), nil
}

// RecentByConversation returns the newest messages of a conversation in
// chronological order, for building model context
func (r *MessageRepository) RecentByConversation(tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
