package handlers

import (
	"github.com/labstack/echo/v4"

	"shoptalk/internal/app"
	"shoptalk/internal/webhook"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, services *app.Services) {
	// Channel webhooks (provider-facing, HMAC-authenticated)
	smsWebhook := webhook.NewSMSHandler(
		services.SMSCodec, services.SMSAuth,
		services.ChannelRepo, services.TenantRepo, services.Dispatcher,
	)
	waWebhook := webhook.NewWhatsAppHandler(
		services.WhatsAppCodec, services.WhatsAppAuth,
		services.ChannelRepo, services.TenantRepo, services.Dispatcher,
		services.WhatsAppVerifyToken,
	)
	webhooks := api.Group("/webhooks")
	webhooks.POST("/sms", smsWebhook.Receive)
	webhooks.POST("/whatsapp", waWebhook.Receive)
	webhooks.GET("/whatsapp", waWebhook.VerifySubscription)

	// Merchant platform endpoints (platform-signed)
	campaignHandler := NewCampaignHandler(
		services.PlatformAuth, services.TenantRepo, services.ChannelRepo,
		services.ConversationRepo, services.MessageRepo, services.Gateway,
	)
	api.POST("/platform/campaigns/messages", campaignHandler.SendMessage)

	// Operator API (tenant-scoped via X-Tenant-ID)
	conversationHandler := NewConversationHandler(services.ConversationRepo, services.MessageRepo)
	api.GET("/conversations", conversationHandler.List)
	api.GET("/conversations/:id", conversationHandler.GetByID)
	api.GET("/conversations/:id/messages", conversationHandler.ListMessages)
	api.PUT("/conversations/:id/status", conversationHandler.UpdateStatus)

	channelHandler := NewChannelHandler(services.ChannelRepo, services.Gateway)
	api.POST("/channels", channelHandler.Create)
	api.GET("/channels", channelHandler.List)
	api.GET("/channels/health", channelHandler.Health)
}
