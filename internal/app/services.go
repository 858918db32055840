package app

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"shoptalk/internal/actor"
	"shoptalk/internal/ai"
	"shoptalk/internal/channel"
	"shoptalk/internal/provider"
	"shoptalk/internal/repo"
	"shoptalk/internal/toolcall"
	"shoptalk/internal/webhook"
)

// Services holds all application services
type Services struct {
	DB *gorm.DB

	TenantRepo       *repo.TenantRepository
	ChannelRepo      *repo.ChannelRepository
	ConversationRepo *repo.ConversationRepository
	MessageRepo      *repo.MessageRepository

	SMSCodec      *channel.SMSCodec
	WhatsAppCodec *channel.WhatsAppCodec

	SMSAuth      *webhook.Authenticator
	WhatsAppAuth *webhook.Authenticator
	PlatformAuth *webhook.PlatformAuthenticator

	ToolClient   *toolcall.Client
	Orchestrator *ai.Orchestrator
	Gateway      *provider.Gateway
	Dispatcher   *actor.Dispatcher

	WhatsAppVerifyToken string
}

// NewServices creates a new services container
func NewServices(db *gorm.DB) *Services {
	tenantRepo := repo.NewTenantRepository(db)
	channelRepo := repo.NewChannelRepository(db)
	conversationRepo := repo.NewConversationRepository(db)
	messageRepo := repo.NewMessageRepository(db)

	smsProvider := provider.NewSMSProvider(
		os.Getenv("SMS_ACCOUNT_SID"),
		os.Getenv("SMS_AUTH_TOKEN"),
		os.Getenv("SMS_API_BASE_URL"),
	)
	whatsappProvider := provider.NewWhatsAppProvider(
		os.Getenv("WHATSAPP_API_BASE_URL"),
		os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		os.Getenv("WHATSAPP_PHONE_ID"),
		os.Getenv("WHATSAPP_TEMPLATE_ONLY") == "true",
	)
	gateway := provider.NewGateway(smsProvider, whatsappProvider)

	toolClient := toolcall.NewClient(15 * time.Second)

	var completer ai.ChatCompleter
	openaiAPIKey := os.Getenv("OPENAI_API_KEY")
	if openaiAPIKey != "" {
		completer = openai.NewClient(openaiAPIKey)
	} else {
		// The orchestrator degrades to canned fallbacks without a model
		log.Warn().Msg("OPENAI_API_KEY not set, AI replies will use fallbacks only")
	}
	orchestrator := ai.NewOrchestrator(completer, toolClient, messageRepo, os.Getenv("OPENAI_MODEL"))

	dispatcher := actor.NewDispatcher(conversationRepo, messageRepo, orchestrator, gateway)

	return &Services{
		DB:                  db,
		TenantRepo:          tenantRepo,
		ChannelRepo:         channelRepo,
		ConversationRepo:    conversationRepo,
		MessageRepo:         messageRepo,
		SMSCodec:            channel.NewSMSCodec(),
		WhatsAppCodec:       channel.NewWhatsAppCodec(),
		SMSAuth:             webhook.NewAuthenticator(os.Getenv("SMS_WEBHOOK_SECRET")),
		WhatsAppAuth:        webhook.NewAuthenticator(os.Getenv("WHATSAPP_WEBHOOK_SECRET")),
		PlatformAuth:        webhook.NewPlatformAuthenticator(os.Getenv("PLATFORM_WEBHOOK_SECRET")),
		ToolClient:          toolClient,
		Orchestrator:        orchestrator,
		Gateway:             gateway,
		Dispatcher:          dispatcher,
		WhatsAppVerifyToken: os.Getenv("WHATSAPP_VERIFY_TOKEN"),
	}
}
