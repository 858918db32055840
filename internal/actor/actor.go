package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"shoptalk/internal/ai"
	"shoptalk/internal/channel"
	"shoptalk/internal/provider"
	"shoptalk/internal/repo"
	"shoptalk/pkg/models"
)

// TurnRunner produces a reply for one inbound message
type TurnRunner interface {
	RunTurn(ctx context.Context, input ai.TurnInput) *ai.TurnResult
}

// Sender delivers outbound messages through the channel gateway
type Sender interface {
	Send(ctx context.Context, kind channel.Kind, req provider.SendRequest) (*provider.SendResult, error)
}

// InboundJob is one normalized customer message bound to its resolved channel
type InboundJob struct {
	Tenant  *models.Tenant
	Channel *models.Channel
	Inbound channel.NormalizedInbound

	// Done, when set, receives the pipeline outcome. Webhook handlers leave
	// it nil and ack immediately.
	Done chan *OutboundResult
}

// OutboundResult reports what one pipeline run did
type OutboundResult struct {
	ConversationID uuid.UUID
	Duplicate      bool
	ReplyText      string
	SendErr        error
	Err            error
}

type worker struct {
	jobs    chan InboundJob
	pending int
}

// Dispatcher serializes inbound processing per conversation. Messages for the
// same (tenant, customer, store) key run strictly in arrival order on one
// goroutine; distinct conversations run in parallel. Status callbacks bypass
// the queue entirely: the monotonic status update makes them safe to apply
// out of band.
type Dispatcher struct {
	conversations *repo.ConversationRepository
	messages      *repo.MessageRepository
	orchestrator  TurnRunner
	gateway       Sender

	turnTimeout time.Duration

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

// NewDispatcher creates a conversation dispatcher
func NewDispatcher(conversations *repo.ConversationRepository, messages *repo.MessageRepository, orchestrator TurnRunner, gateway Sender) *Dispatcher {
	return &Dispatcher{
		conversations: conversations,
		messages:      messages,
		orchestrator:  orchestrator,
		gateway:       gateway,
		turnTimeout:   60 * time.Second,
		workers:       make(map[string]*worker),
	}
}

func conversationKey(tenantID uuid.UUID, customerPhone, storePhone string) string {
	return fmt.Sprintf("%s|%s|%s", tenantID, customerPhone, storePhone)
}

// Enqueue hands an inbound message to its conversation worker. The call
// returns once the job is queued; ordering within a conversation follows
// enqueue order.
func (d *Dispatcher) Enqueue(job InboundJob) {
	key := conversationKey(job.Tenant.ID, job.Inbound.From, job.Inbound.To)

	d.mu.Lock()
	w, ok := d.workers[key]
	if !ok {
		w = &worker{jobs: make(chan InboundJob, 256)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.run(key, w)
	}
	w.pending++
	d.mu.Unlock()

	w.jobs <- job
}

func (d *Dispatcher) run(key string, w *worker) {
	defer d.wg.Done()
	for job := range w.jobs {
		result := d.process(job)
		if job.Done != nil {
			job.Done <- result
		}
		if d.release(key, w) {
			return
		}
	}
}

// release decrements the worker's pending count and retires it when idle
func (d *Dispatcher) release(key string, w *worker) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	w.pending--
	if w.pending == 0 {
		delete(d.workers, key)
		close(w.jobs)
		return true
	}
	return false
}

// Wait blocks until all in-flight conversation workers drain
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// process runs the full inbound pipeline for one message
func (d *Dispatcher) process(job InboundJob) *OutboundResult {
	ctx, cancel := context.WithTimeout(context.Background(), d.turnTimeout)
	defer cancel()

	tenant := job.Tenant
	in := job.Inbound

	conv, err := d.conversations.ResolveOrCreate(tenant.ID, in.From, in.To)
	if err != nil {
		log.Error().
			Err(err).
			Str("tenant_id", tenant.ID.String()).
			Str("customer_phone", in.From).
			Msg("Failed to resolve conversation")
		return &OutboundResult{Err: err}
	}

	if conv.Status != models.ConversationActive {
		if err := d.conversations.Reactivate(tenant.ID, conv.ID); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to reactivate conversation")
		}
	}

	inbound := &models.Message{
		BaseTenantModel:  models.BaseTenantModel{TenantID: tenant.ID},
		ConversationID:   conv.ID,
		Direction:        models.DirectionIn,
		Content:          in.Body,
		Status:           models.StatusDelivered,
		ChannelMessageID: in.ChannelMessageID,
	}
	_, created, err := d.messages.Append(inbound)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to store inbound message")
		return &OutboundResult{ConversationID: conv.ID, Err: err}
	}
	if !created {
		log.Info().
			Str("channel_message_id", in.ChannelMessageID).
			Str("conversation_id", conv.ID.String()).
			Msg("Duplicate inbound message, skipping AI turn")
		return &OutboundResult{ConversationID: conv.ID, Duplicate: true}
	}

	now := time.Now()
	if err := d.conversations.TouchLastMessage(tenant.ID, conv.ID, now); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to touch conversation")
	}

	turn := d.orchestrator.RunTurn(ctx, ai.TurnInput{
		TenantID:         tenant.ID,
		ConversationID:   conv.ID,
		StoreName:        tenant.StoreName,
		CustomerPhone:    in.From,
		Message:          in.Body,
		ChannelMessageID: in.ChannelMessageID,
		ToolEndpoint:     tenant.ToolEndpoint,
	})

	result := &OutboundResult{ConversationID: conv.ID, ReplyText: turn.ResponseText}

	outbound := &models.Message{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenant.ID},
		ConversationID:  conv.ID,
		Direction:       models.DirectionOut,
		Content:         turn.ResponseText,
	}

	sendResult, sendErr := d.gateway.Send(ctx, in.Channel, provider.SendRequest{
		To:      in.From,
		From:    in.To,
		Content: turn.ResponseText,
		Kind:    provider.KindText,
	})
	if sendErr != nil {
		// The reply text is preserved on the failed row so operators can see
		// what the customer should have received
		log.Error().
			Err(sendErr).
			Str("conversation_id", conv.ID.String()).
			Str("channel", string(in.Channel)).
			Msg("Outbound send failed")
		failedAt := time.Now()
		outbound.Status = models.StatusFailed
		outbound.FailedAt = &failedAt
		outbound.FailureReason = sendErr.Error()
		result.SendErr = sendErr
	} else {
		sentAt := time.Now()
		outbound.Status = sendResult.Status
		outbound.ChannelMessageID = sendResult.ChannelMessageID
		outbound.SentAt = &sentAt
	}

	if _, _, err := d.messages.Append(outbound); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to store outbound message")
		result.Err = err
		return result
	}

	if err := d.conversations.TouchLastMessage(tenant.ID, conv.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to touch conversation")
	}

	return result
}

// HandleStatusCallback applies a delivery status update. Unknown message IDs
// are logged and acked; the provider will not be asked to redeliver what we
// cannot correlate.
func (d *Dispatcher) HandleStatusCallback(update channel.StatusUpdate) error {
	_, err := d.messages.UpdateStatusByChannelMessageID(update.ChannelMessageID, update.Status, update.RawStatus)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().
				Str("channel_message_id", update.ChannelMessageID).
				Str("status", string(update.Status)).
				Str("channel", string(update.Channel)).
				Msg("Status callback for unknown message")
			return nil
		}
		return err
	}

	log.Debug().
		Str("channel_message_id", update.ChannelMessageID).
		Str("status", string(update.Status)).
		Msg("Delivery status applied")
	return nil
}
