package channel

import (
	"time"

	"shoptalk/pkg/models"
)

// Kind identifies a messaging transport
type Kind string

const (
	KindSMS      Kind = "sms"
	KindWhatsApp Kind = "whatsapp"
)

// PayloadKind discriminates what a webhook payload carries
type PayloadKind int

const (
	PayloadUnknown PayloadKind = iota
	PayloadInbound
	PayloadStatus
)

// NormalizedInbound is the canonical shape every channel payload reduces to
type NormalizedInbound struct {
	ChannelMessageID string
	From             string
	To               string
	Body             string
	Timestamp        time.Time
	Channel          Kind
}

// StatusUpdate is a normalized delivery status callback
type StatusUpdate struct {
	ChannelMessageID string
	Status           models.MessageStatus
	RawStatus        string
	Channel          Kind
}

// Codec parses one channel's payloads into the canonical shapes and maps its
// provider statuses onto the canonical status set. MapStatus is total: unknown
// provider statuses map to pending and never block processing.
type Codec interface {
	Channel() Kind
	DetectKind(raw []byte, contentType string) PayloadKind
	ParseInbound(raw []byte, contentType string) (*NormalizedInbound, error)
	ParseStatus(raw []byte, contentType string) (*StatusUpdate, error)
	MapStatus(providerStatus string) models.MessageStatus
}
