package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"shoptalk/internal/channel"
	"shoptalk/internal/provider"
	"shoptalk/internal/repo"
	"shoptalk/internal/webhook"
	"shoptalk/pkg/models"
)

// CampaignHandler accepts business-initiated sends from the merchant
// platform: template messages pushed into customer conversations with
// campaign attribution. Requests are platform-signed, a separate secret
// scope from channel webhooks.
type CampaignHandler struct {
	auth          *webhook.PlatformAuthenticator
	tenants       *repo.TenantRepository
	channels      *repo.ChannelRepository
	conversations *repo.ConversationRepository
	messages      *repo.MessageRepository
	gateway       *provider.Gateway
}

func NewCampaignHandler(auth *webhook.PlatformAuthenticator, tenants *repo.TenantRepository, channels *repo.ChannelRepository, conversations *repo.ConversationRepository, messages *repo.MessageRepository, gateway *provider.Gateway) *CampaignHandler {
	return &CampaignHandler{
		auth:          auth,
		tenants:       tenants,
		channels:      channels,
		conversations: conversations,
		messages:      messages,
		gateway:       gateway,
	}
}

type CampaignMessageRequest struct {
	TenantID       string   `json:"tenant_id" validate:"required,uuid"`
	CampaignID     string   `json:"campaign_id" validate:"required,uuid"`
	Channel        string   `json:"channel" validate:"required,oneof=sms whatsapp"`
	StorePhone     string   `json:"store_phone" validate:"required"`
	To             string   `json:"to" validate:"required"`
	TemplateID     string   `json:"template_id"`
	TemplateParams []string `json:"template_params"`
	Content        string   `json:"content"`
}

// SendMessage handles POST /platform/campaigns/messages
func (h *CampaignHandler) SendMessage(c echo.Context) error {
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	if err := h.auth.Verify(rawBody, c.Request().Header.Get(webhook.PlatformSignatureHeader)); err != nil {
		log.Warn().
			Err(err).
			Str("remote_ip", c.RealIP()).
			Msg("Rejected platform request with invalid signature")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	var req CampaignMessageRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	tenantID := uuid.MustParse(req.TenantID)
	campaignID := uuid.MustParse(req.CampaignID)

	tenant, err := h.tenants.GetByID(tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "tenant not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "tenant lookup failed"})
	}

	ch, err := h.channels.GetByPhone(req.Channel, req.StorePhone)
	if err != nil || ch.TenantID != tenant.ID {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no active channel for store phone"})
	}

	conv, err := h.conversations.ResolveOrCreate(tenant.ID, req.To, req.StorePhone)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "conversation resolution failed"})
	}
	if err := h.conversations.AttachCampaign(tenant.ID, conv.ID, campaignID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to attach campaign")
	}

	sendReq := provider.SendRequest{
		To:             req.To,
		From:           req.StorePhone,
		Content:        req.Content,
		Kind:           provider.KindText,
		TemplateID:     req.TemplateID,
		TemplateParams: req.TemplateParams,
	}
	if req.TemplateID != "" {
		sendReq.Kind = provider.KindTemplate
	}

	outbound := &models.Message{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenant.ID},
		ConversationID:  conv.ID,
		Direction:       models.DirectionOut,
		Content:         req.Content,
	}

	sendResult, sendErr := h.gateway.Send(c.Request().Context(), channel.Kind(req.Channel), sendReq)
	if sendErr != nil {
		failedAt := time.Now()
		outbound.Status = models.StatusFailed
		outbound.FailedAt = &failedAt
		outbound.FailureReason = sendErr.Error()
		if _, _, err := h.messages.Append(outbound); err != nil {
			log.Error().Err(err).Msg("Failed to store failed campaign message")
		}
		if errors.Is(sendErr, channel.ErrValidation) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": sendErr.Error()})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "send failed"})
	}

	sentAt := time.Now()
	outbound.Status = sendResult.Status
	outbound.ChannelMessageID = sendResult.ChannelMessageID
	outbound.SentAt = &sentAt
	if _, _, err := h.messages.Append(outbound); err != nil {
		log.Error().Err(err).Msg("Failed to store campaign message")
	}
	if err := h.conversations.TouchLastMessage(tenant.ID, conv.ID, sentAt); err != nil {
		log.Warn().Err(err).Msg("Failed to touch conversation")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"conversation_id":    conv.ID,
		"message_id":         outbound.ID,
		"channel_message_id": sendResult.ChannelMessageID,
		"status":             sendResult.Status,
	})
}
