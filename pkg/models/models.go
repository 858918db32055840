package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseTenantModel is the base model for all tenant-scoped entities
type BaseTenantModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID       `gorm:"type:uuid;index;not null;constraint:OnDelete:RESTRICT" json:"tenant_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BaseModel is the base model for system-wide entities
type BaseModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook to generate UUID if not set
func (b *BaseTenantModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook to generate UUID if not set
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Tenant represents a merchant organization
type Tenant struct {
	BaseModel
	Name         string `gorm:"not null" json:"name" validate:"required"`
	Status       string `gorm:"default:'active'" json:"status"`
	StoreName    string `json:"store_name"`
	StorePhone   string `gorm:"index" json:"store_phone"`
	ToolEndpoint string `json:"tool_endpoint"` // merchant tool server base URL
}

// Channel represents a messaging channel binding for a tenant (SMS, WhatsApp)
type Channel struct {
	BaseTenantModel
	Name          string `gorm:"not null" json:"name" validate:"required"`
	Type          string `gorm:"not null;index" json:"type" validate:"required,oneof=sms whatsapp"`
	StorePhone    string `gorm:"not null;index" json:"store_phone" validate:"required"`
	WebhookSecret string `json:"-"`
	Status        string `gorm:"default:'connected'" json:"status"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`
}

// PaginationResult represents paginated results
type PaginationResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// GetAllModels returns the models registered for AutoMigrate
func GetAllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&Channel{},
		&Conversation{},
		&Message{},
	}
}
