package webhook

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"shoptalk/internal/channel"
)

// emptyTwiML tells the carrier the webhook was handled and no immediate
// reply should be rendered; replies go out through the send gateway instead
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// SMSHandler exposes the carrier webhook endpoints
type SMSHandler struct {
	inner *Handler
}

// NewSMSHandler creates the SMS webhook handler
func NewSMSHandler(codec channel.Codec, auth *Authenticator, channels ChannelResolver, tenants TenantResolver, processor Processor) *SMSHandler {
	return &SMSHandler{inner: NewHandler(codec, auth, channels, tenants, processor, ackTwiML, failTwiML)}
}

// Receive handles POST /webhooks/sms for both inbound messages and status
// callbacks. The carrier expects TwiML back on every request, error
// responses included.
func (h *SMSHandler) Receive(c echo.Context) error {
	return h.inner.receive(c)
}

func ackTwiML(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/xml", []byte(emptyTwiML))
}

// failTwiML renders the empty TwiML document with the error status; the
// reason stays in the logs, the carrier only parses the body
func failTwiML(c echo.Context, code int, _ string) error {
	return c.Blob(code, "text/xml", []byte(emptyTwiML))
}
