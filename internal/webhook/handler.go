package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"shoptalk/internal/actor"
	"shoptalk/internal/channel"
	"shoptalk/internal/observability"
	"shoptalk/pkg/models"
)

// ChannelResolver maps a webhook destination phone onto its channel binding
type ChannelResolver interface {
	GetByPhone(channelType, storePhone string) (*models.Channel, error)
}

// TenantResolver loads the tenant owning a channel
type TenantResolver interface {
	GetByID(id uuid.UUID) (*models.Tenant, error)
}

// Processor receives normalized webhook traffic
type Processor interface {
	Enqueue(job actor.InboundJob)
	HandleStatusCallback(update channel.StatusUpdate) error
}

// Handler is the shared ingestion path for one channel's webhooks: verify,
// detect, parse, resolve, dispatch. Inbound messages are acked as soon as
// they are queued; status callbacks apply synchronously because the update
// is a single monotonic write. The ack and fail renderers are what differ
// per channel: carriers expect their own protocol body on every response,
// error responses included.
type Handler struct {
	codec     channel.Codec
	auth      *Authenticator
	channels  ChannelResolver
	tenants   TenantResolver
	processor Processor
	ack       func(echo.Context) error
	fail      func(c echo.Context, code int, reason string) error
}

// NewHandler creates a webhook handler for a channel codec
func NewHandler(codec channel.Codec, auth *Authenticator, channels ChannelResolver, tenants TenantResolver, processor Processor, ack func(echo.Context) error, fail func(echo.Context, int, string) error) *Handler {
	return &Handler{codec: codec, auth: auth, channels: channels, tenants: tenants, processor: processor, ack: ack, fail: fail}
}

// receive is the channel-agnostic ingestion pipeline
func (h *Handler) receive(c echo.Context) error {
	kind := h.codec.Channel()

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.fail(c, http.StatusBadRequest, "unreadable body")
	}

	if err := h.auth.Verify(rawBody, c.Request().Header.Get(SignatureHeader)); err != nil {
		log.Warn().
			Err(err).
			Str("channel", string(kind)).
			Str("remote_ip", c.RealIP()).
			Msg("Rejected webhook with invalid signature")
		observability.WebhookReceived.WithLabelValues(string(kind), "rejected").Inc()
		return h.fail(c, http.StatusUnauthorized, "invalid signature")
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	switch h.codec.DetectKind(rawBody, contentType) {
	case channel.PayloadStatus:
		return h.receiveStatus(c, rawBody, contentType)
	case channel.PayloadInbound:
		return h.receiveInbound(c, rawBody, contentType)
	default:
		// Providers send event types we never asked for; ack so they stop
		log.Debug().Str("channel", string(kind)).Msg("Ignoring unrecognized webhook payload")
		observability.WebhookReceived.WithLabelValues(string(kind), "ignored").Inc()
		return h.ack(c)
	}
}

func (h *Handler) receiveInbound(c echo.Context, rawBody []byte, contentType string) error {
	kind := h.codec.Channel()

	inbound, err := h.codec.ParseInbound(rawBody, contentType)
	if err != nil {
		log.Warn().Err(err).Str("channel", string(kind)).Msg("Malformed inbound webhook")
		observability.WebhookReceived.WithLabelValues(string(kind), "malformed").Inc()
		return h.fail(c, http.StatusBadRequest, "malformed payload")
	}

	ch, tenant, err := h.resolve(inbound.To)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Ack so the provider stops redelivering traffic we cannot route;
			// the signature already passed, so this is misprovisioning, not
			// an attack
			log.Warn().
				Str("channel", string(kind)).
				Str("store_phone", inbound.To).
				Msg("Webhook for unknown destination number, dropping")
			observability.WebhookReceived.WithLabelValues(string(kind), "unknown_destination").Inc()
			return h.ack(c)
		}
		return h.fail(c, http.StatusInternalServerError, "resolution failed")
	}

	// Channels provisioned with their own secret require it to match too
	if ch.WebhookSecret != "" {
		chAuth := NewAuthenticator(ch.WebhookSecret)
		if err := chAuth.Verify(rawBody, c.Request().Header.Get(SignatureHeader)); err != nil {
			log.Warn().
				Err(err).
				Str("channel_id", ch.ID.String()).
				Msg("Rejected webhook failing channel-specific signature")
			observability.WebhookReceived.WithLabelValues(string(kind), "rejected").Inc()
			return h.fail(c, http.StatusUnauthorized, "invalid signature")
		}
	}

	h.processor.Enqueue(actor.InboundJob{
		Tenant:  tenant,
		Channel: ch,
		Inbound: *inbound,
	})

	observability.WebhookReceived.WithLabelValues(string(kind), "inbound").Inc()
	return h.ack(c)
}

func (h *Handler) receiveStatus(c echo.Context, rawBody []byte, contentType string) error {
	kind := h.codec.Channel()

	update, err := h.codec.ParseStatus(rawBody, contentType)
	if err != nil {
		log.Warn().Err(err).Str("channel", string(kind)).Msg("Malformed status callback")
		observability.WebhookReceived.WithLabelValues(string(kind), "malformed").Inc()
		return h.fail(c, http.StatusBadRequest, "malformed payload")
	}

	// Status callbacks carry no tenant; the message row found by channel
	// message ID scopes the update
	if err := h.processor.HandleStatusCallback(*update); err != nil {
		log.Error().Err(err).Str("channel_message_id", update.ChannelMessageID).Msg("Failed to apply status callback")
		return h.fail(c, http.StatusInternalServerError, "status update failed")
	}

	observability.WebhookReceived.WithLabelValues(string(kind), "status").Inc()
	return h.ack(c)
}

func (h *Handler) resolve(storePhone string) (*models.Channel, *models.Tenant, error) {
	ch, err := h.channels.GetByPhone(string(h.codec.Channel()), storePhone)
	if err != nil {
		return nil, nil, err
	}
	tenant, err := h.tenants.GetByID(ch.TenantID)
	if err != nil {
		return nil, nil, err
	}
	return ch, tenant, nil
}
