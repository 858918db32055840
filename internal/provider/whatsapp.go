package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shoptalk/internal/channel"
	"shoptalk/pkg/models"
)

// whatsappMaxLength is the Business API text body limit
const whatsappMaxLength = 4096

// WhatsAppProvider sends messages through the WhatsApp Business API. Outside
// the 24-hour customer service window only approved templates are accepted, so
// the provider supports both free text and named templates with parameters.
type WhatsAppProvider struct {
	baseURL      string
	accessToken  string
	phoneID      string
	templateOnly bool
	httpClient   *http.Client
}

// NewWhatsAppProvider creates a WhatsApp Business API provider. templateOnly
// restricts the channel to template sends (business-initiated messaging).
func NewWhatsAppProvider(baseURL, accessToken, phoneID string, templateOnly bool) *WhatsAppProvider {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v18.0"
	}
	return &WhatsAppProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		accessToken:  accessToken,
		phoneID:      phoneID,
		templateOnly: templateOnly,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *WhatsAppProvider) Channel() channel.Kind {
	return channel.KindWhatsApp
}

type waTextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type waTemplateParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waTemplateComponent struct {
	Type       string            `json:"type"`
	Parameters []waTemplateParam `json:"parameters"`
}

type waTemplate struct {
	Name       string                `json:"name"`
	Language   map[string]string     `json:"language"`
	Components []waTemplateComponent `json:"components,omitempty"`
}

type waSendRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waTextBody `json:"text,omitempty"`
	Template         *waTemplate `json:"template,omitempty"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a text or template message to the Business API
func (p *WhatsAppProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if !p.ValidateAddress(req.To) {
		return nil, validationError(channel.KindWhatsApp, fmt.Sprintf("invalid destination address %q", req.To))
	}

	payload := waSendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               req.To,
	}

	switch req.Kind {
	case KindTemplate:
		if req.TemplateID == "" {
			return nil, validationError(channel.KindWhatsApp, "template send without template identifier")
		}
		params := make([]waTemplateParam, 0, len(req.TemplateParams))
		for _, v := range req.TemplateParams {
			params = append(params, waTemplateParam{Type: "text", Text: v})
		}
		payload.Type = "template"
		payload.Template = &waTemplate{
			Name:     req.TemplateID,
			Language: map[string]string{"code": "en"},
		}
		if len(params) > 0 {
			payload.Template.Components = []waTemplateComponent{{Type: "body", Parameters: params}}
		}
	case KindText, "":
		if p.templateOnly {
			return nil, validationError(channel.KindWhatsApp, "free text on a template-only channel")
		}
		if req.Content == "" {
			return nil, validationError(channel.KindWhatsApp, "empty content")
		}
		payload.Type = "text"
		payload.Text = &waTextBody{Body: truncate(req.Content, whatsappMaxLength)}
	default:
		return nil, validationError(channel.KindWhatsApp, fmt.Sprintf("unsupported send kind %q", req.Kind))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", p.baseURL, p.phoneID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp API unreachable: %v: %w", err, channel.ErrConnection)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var out waSendResponse
	_ = json.Unmarshal(respBody, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := fmt.Sprintf("whatsapp API returned status %d", resp.StatusCode)
		if out.Error != nil {
			reason = out.Error.Message
		}
		return nil, &SendError{Channel: channel.KindWhatsApp, Code: resp.StatusCode, Reason: reason}
	}
	if len(out.Messages) == 0 {
		return nil, &SendError{Channel: channel.KindWhatsApp, Code: resp.StatusCode, Reason: "response missing message id"}
	}

	log.Info().
		Str("to", req.To).
		Str("channel_message_id", out.Messages[0].ID).
		Str("kind", string(req.Kind)).
		Msg("WhatsApp message sent")

	return &SendResult{
		ChannelMessageID: out.Messages[0].ID,
		Status:           models.StatusSent,
		ProviderID:       p.phoneID,
	}, nil
}

// ValidateAddress checks for a digits-only WhatsApp ID or E.164 number
func (p *WhatsAppProvider) ValidateAddress(address string) bool {
	return e164Pattern.MatchString(address)
}

// Health probes the phone number endpoint
func (p *WhatsAppProvider) Health(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/%s", p.baseURL, p.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// GetStatus always misses: the Business API pushes status via webhook only
func (p *WhatsAppProvider) GetStatus(ctx context.Context, channelMessageID string) (models.MessageStatus, error) {
	return "", ErrMessageNotFound
}
