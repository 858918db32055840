package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"shoptalk/internal/channel"
	"shoptalk/internal/provider"
	"shoptalk/internal/repo"
	"shoptalk/pkg/models"
)

// ChannelHandler manages a tenant's channel bindings
type ChannelHandler struct {
	channels *repo.ChannelRepository
	gateway  *provider.Gateway
}

func NewChannelHandler(channels *repo.ChannelRepository, gateway *provider.Gateway) *ChannelHandler {
	return &ChannelHandler{channels: channels, gateway: gateway}
}

type CreateChannelRequest struct {
	Name          string `json:"name" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=sms whatsapp"`
	StorePhone    string `json:"store_phone" validate:"required"`
	WebhookSecret string `json:"webhook_secret"`
}

// Create handles POST /channels
func (h *ChannelHandler) Create(c echo.Context) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var req CreateChannelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if p, ok := h.gateway.Provider(channel.Kind(req.Type)); ok && !p.ValidateAddress(req.StorePhone) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid store phone for channel"})
	}

	ch := &models.Channel{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		Name:            req.Name,
		Type:            req.Type,
		StorePhone:      req.StorePhone,
		WebhookSecret:   req.WebhookSecret,
		IsActive:        true,
	}
	if err := h.channels.Create(ch); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "channel binding already exists"})
	}
	return c.JSON(http.StatusCreated, ch)
}

// List handles GET /channels
func (h *ChannelHandler) List(c echo.Context) error {
	tenantID, err := tenantFromRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	channels, err := h.channels.ListByTenant(tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list channels"})
	}
	return c.JSON(http.StatusOK, channels)
}

// Health handles GET /channels/health: probes each registered provider
func (h *ChannelHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	status := map[string]bool{}
	for _, kind := range []channel.Kind{channel.KindSMS, channel.KindWhatsApp} {
		if p, ok := h.gateway.Provider(kind); ok {
			status[string(kind)] = p.Health(ctx)
		}
	}
	return c.JSON(http.StatusOK, status)
}
