package channel

import (
	"net/url"
	"strings"
	"time"

	"shoptalk/pkg/models"
)

// SMSCodec parses carrier webhooks delivered as form-encoded POSTs with
// MessageSid/MessageStatus style field names.
type SMSCodec struct{}

// NewSMSCodec creates a new SMS codec
func NewSMSCodec() *SMSCodec {
	return &SMSCodec{}
}

func (c *SMSCodec) Channel() Kind {
	return KindSMS
}

// DetectKind discriminates status callbacks from inbound messages: a status
// field without a body means callback.
func (c *SMSCodec) DetectKind(raw []byte, contentType string) PayloadKind {
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return PayloadUnknown
	}
	hasStatus := form.Get("MessageStatus") != "" || form.Get("SmsStatus") != ""
	hasBody := form.Get("Body") != ""
	if hasStatus && !hasBody {
		return PayloadStatus
	}
	if form.Get("MessageSid") != "" || hasBody {
		return PayloadInbound
	}
	return PayloadUnknown
}

// ParseInbound normalizes an inbound SMS webhook
func (c *SMSCodec) ParseInbound(raw []byte, contentType string) (*NormalizedInbound, error) {
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, &ParseError{Channel: KindSMS, Reason: "malformed form body"}
	}

	sid := form.Get("MessageSid")
	if sid == "" {
		sid = form.Get("SmsSid")
	}
	from := form.Get("From")
	to := form.Get("To")
	body := form.Get("Body")

	if from == "" {
		return nil, &ParseError{Channel: KindSMS, Field: "From", Reason: "missing"}
	}
	if to == "" {
		return nil, &ParseError{Channel: KindSMS, Field: "To", Reason: "missing"}
	}
	if body == "" {
		return nil, &ParseError{Channel: KindSMS, Field: "Body", Reason: "missing"}
	}

	return &NormalizedInbound{
		ChannelMessageID: sid,
		From:             normalizePhone(from),
		To:               normalizePhone(to),
		Body:             body,
		Timestamp:        time.Now().UTC(),
		Channel:          KindSMS,
	}, nil
}

// ParseStatus normalizes an SMS status callback
func (c *SMSCodec) ParseStatus(raw []byte, contentType string) (*StatusUpdate, error) {
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, &ParseError{Channel: KindSMS, Reason: "malformed form body"}
	}

	sid := form.Get("MessageSid")
	if sid == "" {
		sid = form.Get("SmsSid")
	}
	if sid == "" {
		return nil, &ParseError{Channel: KindSMS, Field: "MessageSid", Reason: "missing"}
	}

	rawStatus := form.Get("MessageStatus")
	if rawStatus == "" {
		rawStatus = form.Get("SmsStatus")
	}

	return &StatusUpdate{
		ChannelMessageID: sid,
		Status:           c.MapStatus(rawStatus),
		RawStatus:        rawStatus,
		Channel:          KindSMS,
	}, nil
}

// MapStatus maps carrier statuses to canonical statuses. Total function:
// unknown statuses fall back to pending so processing is never blocked.
func (c *SMSCodec) MapStatus(providerStatus string) models.MessageStatus {
	switch strings.ToLower(providerStatus) {
	case "queued", "accepted", "sending", "scheduled":
		return models.StatusPending
	case "sent":
		return models.StatusSent
	case "delivered":
		return models.StatusDelivered
	case "read":
		return models.StatusRead
	case "failed", "undelivered", "canceled":
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}

// normalizePhone strips formatting characters, keeping digits and leading +
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
