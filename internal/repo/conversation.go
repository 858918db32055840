package repo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"shoptalk/pkg/models"
)

// ConversationRepository handles conversation data access
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID gets a conversation by ID and tenant
func (r *ConversationRepository) GetByID(tenantID, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ResolveOrCreate finds the conversation for (tenant, customer, store) or
// creates it. Concurrent callers racing on the same key all converge on one
// row: the loser of the insert race re-reads the winner's row. The unique
// index on (tenant_id, customer_phone, store_phone) is what makes the race
// detectable.
func (r *ConversationRepository) ResolveOrCreate(tenantID uuid.UUID, customerPhone, storePhone string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Where("tenant_id = ? AND customer_phone = ? AND store_phone = ?",
		tenantID, customerPhone, storePhone).First(&conversation).Error
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conversation = models.Conversation{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		CustomerPhone:   customerPhone,
		StorePhone:      storePhone,
		Status:          models.ConversationActive,
	}
	err = r.db.Create(&conversation).Error
	if err == nil {
		log.Info().
			Str("tenant_id", tenantID.String()).
			Str("customer_phone", customerPhone).
			Str("conversation_id", conversation.ID.String()).
			Msg("Created new conversation")
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	// Lost the insert race; another request created the row first
	var winner models.Conversation
	if err := r.db.Where("tenant_id = ? AND customer_phone = ? AND store_phone = ?",
		tenantID, customerPhone, storePhone).First(&winner).Error; err != nil {
		return nil, err
	}
	return &winner, nil
}

// UpdateStatus sets the conversation status
func (r *ConversationRepository) UpdateStatus(tenantID, id uuid.UUID, status string) error {
	result := r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Reactivate moves an archived or resolved conversation back to active. A
// customer writing into an old thread reopens it rather than starting a new one.
func (r *ConversationRepository) Reactivate(tenantID, id uuid.UUID) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ? AND status <> ?", id, tenantID, models.ConversationActive).
		Update("status", models.ConversationActive).Error
}

// AttachCampaign records campaign attribution on a conversation. First
// campaign wins; later campaigns reaching an attributed thread are ignored.
func (r *ConversationRepository) AttachCampaign(tenantID, id, campaignID uuid.UUID) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ? AND campaign_id IS NULL", id, tenantID).
		Update("campaign_id", campaignID).Error
}

// TouchLastMessage advances last_message_at
func (r *ConversationRepository) TouchLastMessage(tenantID, id uuid.UUID, at time.Time) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("last_message_at", at).Error
}

// ListByTenant lists conversations for a tenant with pagination, most recent
// activity first
func (r *ConversationRepository) ListByTenant(tenantID uuid.UUID, limit, offset int) (models.PaginationResult[models.Conversation], error) {
	var conversations []models.Conversation
	var total int64

	if err := r.db.Model(&models.Conversation{}).Where("tenant_id = ?", tenantID).Count(&total).Error; err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	err := r.db.Where("tenant_id = ?", tenantID).
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error
	if err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	return paginate(conversations, total, limit, offset), nil
}

// ListByCampaign lists conversations attributed to a campaign
func (r *ConversationRepository) ListByCampaign(tenantID, campaignID uuid.UUID, limit, offset int) (models.PaginationResult[models.Conversation], error) {
	var conversations []models.Conversation
	var total int64

	if err := r.db.Model(&models.Conversation{}).
		Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).
		Count(&total).Error; err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	err := r.db.Where("tenant_id = ? AND campaign_id = ?", tenantID, campaignID).
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error
	if err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	return paginate(conversations, total, limit, offset), nil
}

func paginate[T any](data []T, total int64, limit, offset int) models.PaginationResult[T] {
	if limit <= 0 {
		limit = 20
	}
	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}
	return models.PaginationResult[T]{
		Data:       data,
		Total:      total,
		Page:       offset/limit + 1,
		PerPage:    limit,
		TotalPages: totalPages,
	}
}
