package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"shoptalk/internal/channel"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Webhook-Signature"

// PlatformSignatureHeader is the header used by merchant-platform webhooks.
// Platform webhooks use the same algorithm but a separate secret scope; the two
// must never be conflated.
const PlatformSignatureHeader = "X-Platform-Signature"

// Authenticator verifies inbound webhook authenticity before any state
// mutation. Verification runs over the exact raw request bytes, never a
// re-serialized body. It fails closed: missing signature, empty secret, or
// mismatch all reject.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for a channel-provider secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify checks the signature against the raw body
func (a *Authenticator) Verify(rawBody []byte, signature string) error {
	if len(a.secret) == 0 {
		return fmt.Errorf("webhook secret not configured: %w", channel.ErrAuthentication)
	}
	if signature == "" {
		return fmt.Errorf("missing signature header: %w", channel.ErrAuthentication)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch: %w", channel.ErrAuthentication)
	}
	return nil
}

// Sign computes the signature for a body. Used by tests and by the outbound
// platform notifier.
func (a *Authenticator) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// PlatformAuthenticator verifies merchant-platform webhooks. Same algorithm as
// the channel authenticator, independent secret scope.
type PlatformAuthenticator struct {
	inner Authenticator
}

// NewPlatformAuthenticator creates a platform webhook verifier
func NewPlatformAuthenticator(secret string) *PlatformAuthenticator {
	return &PlatformAuthenticator{inner: Authenticator{secret: []byte(secret)}}
}

// Verify checks a platform webhook signature against the raw body
func (p *PlatformAuthenticator) Verify(rawBody []byte, signature string) error {
	return p.inner.Verify(rawBody, signature)
}
