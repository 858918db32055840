package webhook

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"shoptalk/internal/channel"
)

// WhatsAppHandler exposes the Business API webhook endpoints
type WhatsAppHandler struct {
	inner       *Handler
	verifyToken string
}

// NewWhatsAppHandler creates the WhatsApp webhook handler. verifyToken is the
// value Meta echoes during webhook subscription.
func NewWhatsAppHandler(codec channel.Codec, auth *Authenticator, channels ChannelResolver, tenants TenantResolver, processor Processor, verifyToken string) *WhatsAppHandler {
	return &WhatsAppHandler{
		inner:       NewHandler(codec, auth, channels, tenants, processor, ackJSON, failJSON),
		verifyToken: verifyToken,
	}
}

// Receive handles POST /webhooks/whatsapp for inbound messages and status
// callbacks
func (h *WhatsAppHandler) Receive(c echo.Context) error {
	return h.inner.receive(c)
}

// VerifySubscription handles the GET subscription handshake Meta performs
// when the webhook URL is registered
func (h *WhatsAppHandler) VerifySubscription(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		log.Warn().
			Str("mode", mode).
			Str("remote_ip", c.RealIP()).
			Msg("Rejected webhook subscription handshake")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "verification failed"})
	}
	return c.String(http.StatusOK, challenge)
}

func ackJSON(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

func failJSON(c echo.Context, code int, reason string) error {
	return c.JSON(code, map[string]string{"error": reason})
}
