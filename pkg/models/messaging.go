package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation statuses
const (
	ConversationActive   = "active"
	ConversationPaused   = "paused"
	ConversationResolved = "resolved"
	ConversationArchived = "archived"
)

// Message directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// MessageStatus is the canonical delivery status of a message
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders the happy-path statuses; callbacks must never move a
// message below its current rank.
var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank returns the monotonic rank of a status. Failed is terminal and has no rank.
func (s MessageStatus) Rank() (int, bool) {
	r, ok := statusRank[s]
	return r, ok
}

// Terminal reports whether no further status transitions are allowed
func (s MessageStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// Conversation represents the durable thread between one customer and one store
type Conversation struct {
	BaseTenantModel
	CampaignID    *uuid.UUID `gorm:"type:uuid;index" json:"campaign_id"`
	CustomerPhone string     `gorm:"size:50;not null;index" json:"customer_phone"`
	StorePhone    string     `gorm:"size:50;not null;index" json:"store_phone"`
	Status        string     `gorm:"default:'active'" json:"status"`
	LastMessageAt *time.Time `json:"last_message_at"`
	Metadata      string     `json:"metadata,omitempty"`
}

// Message represents a message in a conversation. The message log is
// append-only; only the status fields are mutated after creation.
type Message struct {
	BaseTenantModel
	ConversationID   uuid.UUID     `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	Direction        string        `gorm:"not null" json:"direction"` // in, out
	Content          string        `gorm:"type:text" json:"content"`
	Status           MessageStatus `gorm:"default:'pending'" json:"status"`
	ChannelMessageID string        `gorm:"index" json:"channel_message_id"`
	SentAt           *time.Time    `json:"sent_at"`
	DeliveredAt      *time.Time    `json:"delivered_at"`
	ReadAt           *time.Time    `json:"read_at"`
	FailedAt         *time.Time    `json:"failed_at"`
	FailureReason    string        `json:"failure_reason,omitempty"`

	// Relations
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}
