package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shoptalk/internal/channel"
	"shoptalk/pkg/models"
)

// smsMaxLength keeps concatenated SMS segments within carrier limits
const smsMaxLength = 1600

var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

// SMSProvider sends messages through a carrier REST API (Twilio-compatible
// Messages endpoint). The carrier reports delivery only via status callback
// webhooks, so GetStatus always returns ErrMessageNotFound.
type SMSProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// NewSMSProvider creates a carrier SMS provider
func NewSMSProvider(accountSID, authToken, baseURL string) *SMSProvider {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &SMSProvider{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *SMSProvider) Channel() channel.Kind {
	return channel.KindSMS
}

type carrierSendResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send posts a free-text message to the carrier. Template sends are rejected:
// SMS has no template channel, and a silent downgrade would hide the mistake.
func (p *SMSProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Kind == KindTemplate {
		return nil, validationError(channel.KindSMS, "template sends are not supported on SMS")
	}
	if req.Content == "" {
		return nil, validationError(channel.KindSMS, "empty content")
	}
	if !p.ValidateAddress(req.To) {
		return nil, validationError(channel.KindSMS, fmt.Sprintf("invalid destination address %q", req.To))
	}

	body := truncate(req.Content, smsMaxLength)

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, p.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build carrier request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("carrier unreachable: %v: %w", err, channel.ErrConnection)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var out carrierSendResponse
	_ = json.Unmarshal(respBody, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := out.Message
		if reason == "" {
			reason = fmt.Sprintf("carrier returned status %d", resp.StatusCode)
		}
		return nil, &SendError{Channel: channel.KindSMS, Code: resp.StatusCode, Reason: reason}
	}

	log.Info().
		Str("to", req.To).
		Str("channel_message_id", out.Sid).
		Str("carrier_status", out.Status).
		Msg("SMS sent via carrier API")

	status := models.StatusSent
	if out.Status == "queued" || out.Status == "accepted" {
		status = models.StatusPending
	}

	return &SendResult{
		ChannelMessageID: out.Sid,
		Status:           status,
		ProviderID:       p.accountSID,
	}, nil
}

// ValidateAddress checks for an E.164-shaped phone number
func (p *SMSProvider) ValidateAddress(address string) bool {
	return e164Pattern.MatchString(address)
}

// Health probes the carrier account endpoint
func (p *SMSProvider) Health(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// GetStatus always misses: the carrier pushes status via webhook only
func (p *SMSProvider) GetStatus(ctx context.Context, channelMessageID string) (models.MessageStatus, error) {
	return "", ErrMessageNotFound
}
