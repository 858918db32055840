package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"shoptalk/internal/channel"
	"shoptalk/internal/observability"
)

// Gateway routes sends to the right channel provider and applies the shared
// resilience policy: a local rate limit, a circuit breaker per channel, and at
// most one retry with backoff on transient failures. Validation errors and
// provider rejections are never retried.
type Gateway struct {
	providers map[channel.Kind]Provider
	breakers  map[channel.Kind]*gobreaker.CircuitBreaker
	limiter   *rate.Limiter
}

// NewGateway creates a gateway over the given providers
func NewGateway(providers ...Provider) *Gateway {
	g := &Gateway{
		providers: make(map[channel.Kind]Provider),
		breakers:  make(map[channel.Kind]*gobreaker.CircuitBreaker),
		limiter:   rate.NewLimiter(rate.Limit(50), 100),
	}
	for _, p := range providers {
		g.providers[p.Channel()] = p
		g.breakers[p.Channel()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(p.Channel()),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return g
}

// Provider returns the provider registered for a channel
func (g *Gateway) Provider(kind channel.Kind) (Provider, bool) {
	p, ok := g.providers[kind]
	return p, ok
}

// Send delivers an outbound message on the given channel, retrying once with
// backoff on connection-level failures
func (g *Gateway) Send(ctx context.Context, kind channel.Kind, req SendRequest) (*SendResult, error) {
	p, ok := g.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for channel %s: %w", kind, channel.ErrValidation)
	}

	if g.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := g.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			observability.ProviderSend.WithLabelValues(string(kind), "rate_limited").Inc()
			return nil, fmt.Errorf("send rate limit exceeded: %w", channel.ErrProviderSend)
		}
	}

	breaker := g.breakers[kind]
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("send canceled: %v: %w", ctx.Err(), channel.ErrProviderSend)
			}
		}

		resAny, err := breaker.Execute(func() (interface{}, error) {
			return p.Send(ctx, req)
		})
		if err == nil {
			observability.ProviderSend.WithLabelValues(string(kind), "ok").Inc()
			observability.ProviderSendLatency.Observe(time.Since(start).Seconds())
			return resAny.(*SendResult), nil
		}

		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.ProviderSend.WithLabelValues(string(kind), "breaker_open").Inc()
			return nil, fmt.Errorf("%s provider circuit open: %w", kind, channel.ErrProviderSend)
		}

		// Only transient transport failures are worth a second attempt
		if !errors.Is(err, channel.ErrConnection) {
			break
		}

		log.Warn().
			Err(err).
			Str("channel", string(kind)).
			Int("attempt", attempt+1).
			Msg("Transient send failure, retrying")
	}

	observability.ProviderSend.WithLabelValues(string(kind), "error").Inc()

	if errors.Is(lastErr, channel.ErrValidation) || errors.Is(lastErr, channel.ErrProviderSend) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%v: %w", lastErr, channel.ErrProviderSend)
}

func backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
