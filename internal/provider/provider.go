package provider

import (
	"context"
	"fmt"

	"shoptalk/internal/channel"
	"shoptalk/pkg/models"
)

// SendKind distinguishes free-text sends from template sends
type SendKind string

const (
	KindText     SendKind = "text"
	KindTemplate SendKind = "template"
)

// SendRequest is a channel-agnostic outbound message
type SendRequest struct {
	To             string
	From           string
	Content        string
	Kind           SendKind
	TemplateID     string
	TemplateParams []string
}

// SendResult is the abstracted provider response written into the message row
type SendResult struct {
	ChannelMessageID string
	Status           models.MessageStatus
	ProviderID       string
}

// Provider is the uniform send/validate/status interface implemented per
// channel. A provider with no status-polling API returns ErrMessageNotFound
// from GetStatus; callers must not treat that as fatal.
type Provider interface {
	Channel() channel.Kind
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	ValidateAddress(address string) bool
	Health(ctx context.Context) bool
	GetStatus(ctx context.Context, channelMessageID string) (models.MessageStatus, error)
}

// ErrMessageNotFound is returned by GetStatus when the channel only reports
// status via webhook callbacks
var ErrMessageNotFound = fmt.Errorf("message status not available from provider: %w", channel.ErrNotFound)

// SendError means the provider rejected or failed the send after retry policy
// was exhausted
type SendError struct {
	Channel channel.Kind
	Code    int
	Reason  string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failed: %s (http %d)", e.Channel, e.Reason, e.Code)
}

// Is makes SendError match ErrProviderSend for errors.Is dispatch
func (e *SendError) Is(target error) bool {
	return target == channel.ErrProviderSend
}

// validationError builds a kind-mismatch rejection
func validationError(kind channel.Kind, reason string) error {
	return fmt.Errorf("%s: %s: %w", kind, reason, channel.ErrValidation)
}

// truncateMarker is appended when content exceeds a channel length limit.
// Truncation is always explicit, never silent.
const truncateMarker = "… [truncated]"

func truncate(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit - len(truncateMarker)
	if cut < 0 {
		cut = 0
	}
	// Avoid splitting a multi-byte rune at the cut point
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut] + truncateMarker
}
