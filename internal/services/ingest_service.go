package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/jobs"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/utils"
	"gorm.io/gorm"
)

// IngestService drives the inbound pipeline: idempotency guard, customer
// and chat directory, durable message log, then grouping buffer or media
// fetch. It also runs the manual-reply detector on outbound echoes.
type IngestService struct {
	customers repositories.CustomerRepo
	chats     repositories.ChatRepo
	messages  repositories.MessageRepo
	groups    repositories.GroupRepo

	buffer *BufferService
	queue  Enqueuer

	manualReplyGrace time.Duration
}

func NewIngestService(
	customers repositories.CustomerRepo,
	chats repositories.ChatRepo,
	messages repositories.MessageRepo,
	groups repositories.GroupRepo,
	buffer *BufferService,
	queue Enqueuer,
	manualReplyGrace time.Duration,
) *IngestService {
	if manualReplyGrace == 0 {
		manualReplyGrace = 10 * time.Second
	}

	return &IngestService{
		customers:        customers,
		chats:            chats,
		messages:         messages,
		groups:           groups,
		buffer:           buffer,
		queue:            queue,
		manualReplyGrace: manualReplyGrace,
	}
}

// HandleEvent processes one canonical event from a transport adapter.
// Errors mean internal failure; duplicates and unknown kinds come back
// nil so the provider sees 200 and stops retrying.
func (s *IngestService) HandleEvent(ctx context.Context, tc *tenant.Context, evt *whatsapp.InboundEvent) error {
	switch evt.Kind {
	case whatsapp.EventKindMessage:
		if evt.Message.FromMe {
			return s.handleOutbound(ctx, tc, evt.Message)
		}
		return s.handleInbound(ctx, tc, evt.Message)
	case whatsapp.EventKindEcho:
		return s.handleOutbound(ctx, tc, evt.Message)
	case whatsapp.EventKindStatus:
		return s.handleStatus(tc, evt.Status)
	default:
		return nil
	}
}

func (s *IngestService) handleInbound(ctx context.Context, tc *tenant.Context, in *whatsapp.InboundMessage) error {
	phone := whatsapp.NormalizePhone(in.FromPhone)
	if phone == "" || in.ProviderMessageID == "" {
		return nil
	}

	duplicate, err := s.isDuplicate(tc, phone, in.ProviderMessageID)
	if err != nil {
		return err
	}
	if duplicate {
		utils.LogInfo("↩️ duplicate delivery discarded", map[string]interface{}{
			"provider_message_id": in.ProviderMessageID,
		})
		return nil
	}

	customer, err := s.customers.FindOrCreate(tc.Tenant.ID, phone, in.PushName)
	if err != nil {
		return fmt.Errorf("failed to resolve customer: %w", err)
	}
	if err := s.customers.TouchLastSeen(customer.ID); err != nil {
		utils.LogError("failed to touch customer", err, nil)
	}

	chat, err := s.chats.FindOrCreate(tc.Tenant.ID, customer.ID, tc.Channel.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve chat: %w", err)
	}
	if err := s.chats.TouchLastMessage(chat.ID, in.Timestamp); err != nil {
		utils.LogError("failed to touch chat", err, nil)
	}

	message := s.buildMessage(tc, chat, customer, in, models.SenderCustomer)
	if err := s.messages.Create(message); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	agentActive := customer.AIAgentEnabled && chat.AIAgentEnabled

	if in.MediaPending {
		return s.dispatchMedia(ctx, tc, customer, chat, message, in, agentActive)
	}

	if !agentActive || message.Type != models.MessageTypeText {
		return nil
	}
	return s.buffer.Append(ctx, tc.Tenant, customer, chat, message)
}

// isDuplicate applies the idempotency guard: the provider id is matched
// against the durable message log and any unflushed group, scoped to the
// tenant because provider ids are only unique per channel.
func (s *IngestService) isDuplicate(tc *tenant.Context, phone, providerMessageID string) (bool, error) {
	exists, err := s.messages.ExistsByProviderID(tc.Tenant.ID, providerMessageID)
	if err != nil {
		return false, fmt.Errorf("idempotency check failed: %w", err)
	}
	if exists {
		return true, nil
	}

	customer, err := s.customers.GetByPhone(tc.Tenant.ID, phone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	open, err := s.groups.FindOpen(tc.Tenant.ID, customer.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return open.HasProviderMessage(providerMessageID), nil
}

func (s *IngestService) buildMessage(tc *tenant.Context, chat *models.Chat, customer *models.Customer, in *whatsapp.InboundMessage, sender string) *models.Message {
	content := in.Text
	if content == "" && in.Type != models.MessageTypeText {
		content = whatsapp.PlaceholderContent(in.Type)
	}

	meta := models.MessageMeta{
		MediaID:  in.MediaID,
		MediaURL: in.MediaURL,
		MimeType: in.MimeType,
		Caption:  in.Caption,
	}
	if in.MediaPending {
		meta.MediaStatus = models.MediaStatusPending
	}
	if in.Quoted != nil {
		meta.Quoted = s.resolveQuote(tc, customer, in)
	}

	return &models.Message{
		TenantID:          tc.Tenant.ID,
		ChatID:            chat.ID,
		Sender:            sender,
		Type:              in.Type,
		Content:           content,
		ProviderMessageID: in.ProviderMessageID,
		Metadata:          meta,
		Timestamp:         in.Timestamp,
	}
}

// resolveQuote looks the quoted provider id up in the message log. A hit
// yields an authoritative reference; a miss keeps the provider id with a
// sender inferred from whether the quoted author is the current sender.
func (s *IngestService) resolveQuote(tc *tenant.Context, customer *models.Customer, in *whatsapp.InboundMessage) *models.QuotedRef {
	quoted, err := s.messages.GetByProviderID(tc.Tenant.ID, in.Quoted.ProviderMessageID)
	if err == nil {
		return &models.QuotedRef{
			ProviderMessageID: in.Quoted.ProviderMessageID,
			Type:              quoted.Type,
			Content:           quoted.Content,
			Sender:            quoted.Sender,
		}
	}

	sender := models.SenderBusiness
	if whatsapp.NormalizePhone(in.Quoted.SenderPhone) == customer.Phone {
		sender = models.SenderCustomer
	}
	return &models.QuotedRef{
		ProviderMessageID: in.Quoted.ProviderMessageID,
		Content:           in.Quoted.Text,
		Sender:            sender,
	}
}

// dispatchMedia queues the background fetch. Media arriving mid-burst
// joins the open group so the flushed turn carries it; otherwise the
// resolved media becomes its own immediate turn.
func (s *IngestService) dispatchMedia(ctx context.Context, tc *tenant.Context, customer *models.Customer, chat *models.Chat, message *models.Message, in *whatsapp.InboundMessage, agentActive bool) error {
	payload := mediaFetchPayload{
		MessageID: message.ID.String(),
		ChatID:    chat.ID.String(),
		MediaID:   in.MediaID,
		MediaURL:  in.MediaURL,
		Type:      message.Type,
		Caption:   in.Caption,
		Invoke:    agentActive,
	}

	if agentActive {
		if open, err := s.groups.FindOpen(tc.Tenant.ID, customer.ID); err == nil && len(open.Items) > 0 {
			if _, err := s.buffer.AppendToGroup(ctx, tc.Tenant, open.ID, message); err == nil {
				payload.GroupID = open.ID.String()
				payload.Invoke = false
			}
		}
	}

	_, err := s.queue.Enqueue(ctx, tc.Tenant.ID, jobs.TypeMediaFetch, payload, jobs.EnqueueOptions{})
	if err != nil {
		return fmt.Errorf("failed to queue media fetch: %w", err)
	}
	return nil
}

// handleOutbound is the manual-reply detector. An outbound event is ours
// iff the message log already carries its provider id; agent sends whose
// id backfill raced the echo are matched within a grace window. Anything
// else is a human operator reply.
func (s *IngestService) handleOutbound(ctx context.Context, tc *tenant.Context, in *whatsapp.InboundMessage) error {
	if in.ProviderMessageID == "" {
		return nil
	}

	exists, err := s.messages.ExistsByProviderID(tc.Tenant.ID, in.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("outbound lookup failed: %w", err)
	}
	if exists {
		return nil
	}

	phone := whatsapp.NormalizePhone(in.ToPhone)
	customer, err := s.customers.GetByPhone(tc.Tenant.ID, phone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No thread with this recipient; nothing to detect.
		return nil
	}
	if err != nil {
		return err
	}

	chat, err := s.chats.FindOrCreate(tc.Tenant.ID, customer.ID, tc.Channel.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve chat: %w", err)
	}

	// Grace window: a just-dispatched agent send may not have its
	// provider id persisted yet when the echo arrives.
	pending, err := s.messages.LatestPendingAgentSend(chat.ID, time.Now().Add(-s.manualReplyGrace))
	if err == nil && pending != nil {
		if err := s.messages.SetProviderID(pending.ID, in.ProviderMessageID); err != nil {
			utils.LogError("failed to adopt agent send echo", err, nil)
		}
		return nil
	}

	// Manual operator reply: record it and, unless the tenant opted out,
	// hand the conversation over to the human.
	message := s.buildMessage(tc, chat, customer, in, models.SenderBusiness)
	if err := s.messages.Create(message); err != nil {
		return fmt.Errorf("failed to persist manual reply: %w", err)
	}
	if err := s.chats.TouchLastMessage(chat.ID, in.Timestamp); err != nil {
		utils.LogError("failed to touch chat", err, nil)
	}

	// Operator media still needs its durable URL; it never opens an
	// agent turn, so the fetch runs without the invoke flag.
	if in.MediaPending {
		if err := s.dispatchMedia(ctx, tc, customer, chat, message, in, false); err != nil {
			return err
		}
	}

	if tc.Tenant.ManualReplyDisablesAgent() {
		if err := s.customers.SetAgentEnabled(customer.ID, false); err != nil {
			return fmt.Errorf("failed to disable agent on customer: %w", err)
		}
		if err := s.chats.SetAgentEnabled(chat.ID, false); err != nil {
			return fmt.Errorf("failed to disable agent on chat: %w", err)
		}
		utils.LogInfo("🙋 human takeover, agent disabled", map[string]interface{}{
			"customer_id": customer.ID,
			"chat_id":     chat.ID,
		})
	}

	return nil
}

func (s *IngestService) handleStatus(tc *tenant.Context, status *whatsapp.StatusEvent) error {
	if status.ProviderMessageID == "" || status.Status == "" {
		return nil
	}
	utils.LogDebug("📬 delivery status update", map[string]interface{}{
		"provider_message_id": status.ProviderMessageID,
		"status":              status.Status,
	})
	return s.messages.UpdateDeliveryStatus(tc.Tenant.ID, status.ProviderMessageID, status.Status)
}
