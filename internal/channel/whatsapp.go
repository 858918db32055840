package channel

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"shoptalk/pkg/models"
)

// WhatsAppCodec parses WhatsApp Business API webhooks: structured JSON with
// entry/changes/value nesting carrying either messages or statuses.
type WhatsAppCodec struct{}

// NewWhatsAppCodec creates a new WhatsApp codec
func NewWhatsAppCodec() *WhatsAppCodec {
	return &WhatsAppCodec{}
}

type waWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string  `json:"field"`
			Value waValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

func (c *WhatsAppCodec) Channel() Kind {
	return KindWhatsApp
}

func (c *WhatsAppCodec) decode(raw []byte) (*waValue, error) {
	var hook waWebhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		return nil, &ParseError{Channel: KindWhatsApp, Reason: "malformed JSON body"}
	}
	if len(hook.Entry) == 0 || len(hook.Entry[0].Changes) == 0 {
		return nil, &ParseError{Channel: KindWhatsApp, Field: "entry", Reason: "missing"}
	}
	return &hook.Entry[0].Changes[0].Value, nil
}

// DetectKind discriminates status callbacks from inbound messages
func (c *WhatsAppCodec) DetectKind(raw []byte, contentType string) PayloadKind {
	value, err := c.decode(raw)
	if err != nil {
		return PayloadUnknown
	}
	if len(value.Statuses) > 0 && len(value.Messages) == 0 {
		return PayloadStatus
	}
	if len(value.Messages) > 0 {
		return PayloadInbound
	}
	return PayloadUnknown
}

// ParseInbound normalizes the first message of a WhatsApp webhook
func (c *WhatsAppCodec) ParseInbound(raw []byte, contentType string) (*NormalizedInbound, error) {
	value, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	if len(value.Messages) == 0 {
		return nil, &ParseError{Channel: KindWhatsApp, Field: "messages", Reason: "missing"}
	}

	msg := value.Messages[0]
	if msg.From == "" {
		return nil, &ParseError{Channel: KindWhatsApp, Field: "from", Reason: "missing"}
	}
	if msg.Text == nil || msg.Text.Body == "" {
		return nil, &ParseError{Channel: KindWhatsApp, Field: "text.body", Reason: "missing"}
	}

	ts := time.Now().UTC()
	if epoch, perr := strconv.ParseInt(msg.Timestamp, 10, 64); perr == nil && epoch > 0 {
		ts = time.Unix(epoch, 0).UTC()
	}

	return &NormalizedInbound{
		ChannelMessageID: msg.ID,
		From:             normalizePhone(msg.From),
		To:               normalizePhone(value.Metadata.DisplayPhoneNumber),
		Body:             msg.Text.Body,
		Timestamp:        ts,
		Channel:          KindWhatsApp,
	}, nil
}

// ParseStatus normalizes the first status entry of a WhatsApp webhook
func (c *WhatsAppCodec) ParseStatus(raw []byte, contentType string) (*StatusUpdate, error) {
	value, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	if len(value.Statuses) == 0 {
		return nil, &ParseError{Channel: KindWhatsApp, Field: "statuses", Reason: "missing"}
	}

	st := value.Statuses[0]
	if st.ID == "" {
		return nil, &ParseError{Channel: KindWhatsApp, Field: "statuses.id", Reason: "missing"}
	}

	return &StatusUpdate{
		ChannelMessageID: st.ID,
		Status:           c.MapStatus(st.Status),
		RawStatus:        st.Status,
		Channel:          KindWhatsApp,
	}, nil
}

// MapStatus maps WhatsApp statuses to canonical statuses, defaulting unknown
// statuses to pending
func (c *WhatsAppCodec) MapStatus(providerStatus string) models.MessageStatus {
	switch strings.ToLower(providerStatus) {
	case "sent":
		return models.StatusSent
	case "delivered":
		return models.StatusDelivered
	case "read":
		return models.StatusRead
	case "failed", "undelivered":
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}
