package repo

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"shoptalk/pkg/models"
)

// ChannelRepository handles channel binding data access
type ChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// GetByID gets a channel by ID and tenant ID
func (r *ChannelRepository) GetByID(tenantID, id uuid.UUID) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&ch).Error
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetByPhone resolves the active channel binding for an inbound webhook by
// channel type and store phone number. This lookup is global: the webhook
// carries no tenant, the destination number identifies it.
func (r *ChannelRepository) GetByPhone(channelType, storePhone string) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.Where("type = ? AND store_phone = ? AND is_active = ?", channelType, storePhone, true).
		First(&ch).Error
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Create creates a new channel binding
func (r *ChannelRepository) Create(ch *models.Channel) error {
	return r.db.Create(ch).Error
}

// Update updates a channel binding
func (r *ChannelRepository) Update(ch *models.Channel) error {
	return r.db.Save(ch).Error
}

// ListByTenant lists channel bindings for a tenant
func (r *ChannelRepository) ListByTenant(tenantID uuid.UUID) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&channels).Error
	return channels, err
}

// TenantRepository handles tenant data access
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByID gets a tenant by ID
func (r *TenantRepository) GetByID(id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Create creates a new tenant
func (r *TenantRepository) Create(tenant *models.Tenant) error {
	return r.db.Create(tenant).Error
}
