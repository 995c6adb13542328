package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/agent"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/utils"
)

// ProviderFactory builds the outbound WhatsApp provider for a channel.
// Injectable so tests can substitute a fake transport.
type ProviderFactory func(channel *models.Channel) (whatsapp.Provider, error)

// AgentService is the bridge between the grouping buffer and the AI
// agent: it meters usage, dispatches conversation turns and persists
// every agent send before handing it to the provider.
type AgentService struct {
	tenants  repositories.TenantRepo
	messages repositories.MessageRepo
	chats    repositories.ChatRepo
	usage    repositories.UsageRepo

	providerFor ProviderFactory
	openAIKey   string
	callTimeout time.Duration
}

func NewAgentService(
	tenants repositories.TenantRepo,
	messages repositories.MessageRepo,
	chats repositories.ChatRepo,
	usage repositories.UsageRepo,
	providerFor ProviderFactory,
	openAIKey string,
	callTimeout time.Duration,
) *AgentService {
	if callTimeout == 0 {
		callTimeout = 60 * time.Second
	}

	return &AgentService{
		tenants:     tenants,
		messages:    messages,
		chats:       chats,
		usage:       usage,
		providerFor: providerFor,
		openAIKey:   openAIKey,
		callTimeout: callTimeout,
	}
}

// InvokeTurn dispatches one customer-triggered conversation turn to the
// agent. Usage is incremented exactly once per call, before dispatch,
// regardless of how many outbound messages the agent produces.
func (s *AgentService) InvokeTurn(
	ctx context.Context,
	tenant *models.Tenant,
	channel *models.Channel,
	customer *models.Customer,
	chat *models.Chat,
	turn []agent.TurnMessage,
) error {
	if len(turn) == 0 {
		return nil
	}

	provider, err := s.agentProviderFor(tenant)
	if err != nil {
		return err
	}

	if err := s.usage.IncrementAgentInvocations(tenant.ID); err != nil {
		// Metering must never block a customer turn.
		utils.LogError("failed to record agent usage", err, map[string]interface{}{
			"tenant_id": tenant.ID,
		})
	}

	inv, err := s.buildInvocation(tenant, customer, chat, turn)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	reply, err := provider.Invoke(callCtx, inv)
	if err != nil {
		return fmt.Errorf("agent invocation failed: %w", err)
	}

	utils.LogInfo("🤖 agent turn dispatched", map[string]interface{}{
		"tenant_id": tenant.ID,
		"chat_id":   chat.ID,
		"messages":  len(turn),
		"provider":  provider.GetProviderName(),
	})

	// HTTP agents answer through the agent-events webhook; only the
	// synchronous fallback hands a reply back here.
	if reply != nil && reply.Text != "" {
		if _, err := s.SendAgentText(ctx, tenant, channel, customer, chat, reply.Text); err != nil {
			return err
		}
	}

	return nil
}

func (s *AgentService) agentProviderFor(tenant *models.Tenant) (agent.Provider, error) {
	if tenant.AgentEndpoint != "" {
		return agent.NewHTTPProvider(tenant.AgentEndpoint, tenant.AgentAPIKey, s.callTimeout), nil
	}
	if s.openAIKey != "" {
		return agent.NewOpenAIProvider(s.openAIKey, ""), nil
	}
	return nil, fmt.Errorf("tenant %s has no agent endpoint and no fallback is configured", tenant.ID)
}

func (s *AgentService) buildInvocation(
	tenant *models.Tenant,
	customer *models.Customer,
	chat *models.Chat,
	turn []agent.TurnMessage,
) (*agent.Invocation, error) {
	rates, err := s.tenants.ListShippingRates(tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipping rates: %w", err)
	}

	rateInfos := make([]agent.RateInfo, 0, len(rates))
	for _, r := range rates {
		rateInfos = append(rateInfos, agent.RateInfo{
			ID:             r.ID.String(),
			Name:           r.Name,
			Price:          r.Price,
			ConditionType:  r.ConditionType,
			ConditionValue: r.ConditionValue,
		})
	}

	var paymentMethods []string
	if len(tenant.PaymentMethods) > 0 {
		if err := json.Unmarshal(tenant.PaymentMethods, &paymentMethods); err != nil {
			paymentMethods = nil
		}
	}

	return &agent.Invocation{
		TenantID:         tenant.ID.String(),
		ChatID:           chat.ID.String(),
		CustomerPhone:    customer.Phone,
		CustomerName:     customer.Name,
		Messages:         turn,
		AgentName:        tenant.AgentName,
		AgentPersonality: tenant.AgentPersonality,
		SalesMode:        tenant.SalesMode,
		StoreInfo:        tenant.StoreInfo,
		PaymentMethods:   paymentMethods,
		ShippingRates:    rateInfos,
	}, nil
}

// SendAgentText persists an agent-sender message, then dispatches it and
// backfills the provider id. Persisting first is what lets the
// manual-reply detector recognize the send when its echo comes back.
func (s *AgentService) SendAgentText(
	ctx context.Context,
	tenant *models.Tenant,
	channel *models.Channel,
	customer *models.Customer,
	chat *models.Chat,
	text string,
) (*models.Message, error) {
	return s.sendAgentMessage(ctx, tenant, channel, customer, chat, &models.Message{
		TenantID: tenant.ID,
		ChatID:   chat.ID,
		Sender:   models.SenderAgent,
		Type:     models.MessageTypeText,
		Content:  text,
	}, "")
}

// SendAgentMedia sends media by URL. Channels without media support get
// the caption and URL as plain text instead of losing the reply.
func (s *AgentService) SendAgentMedia(
	ctx context.Context,
	tenant *models.Tenant,
	channel *models.Channel,
	customer *models.Customer,
	chat *models.Chat,
	mediaURL, caption string,
) (*models.Message, error) {
	return s.sendAgentMessage(ctx, tenant, channel, customer, chat, &models.Message{
		TenantID: tenant.ID,
		ChatID:   chat.ID,
		Sender:   models.SenderAgent,
		Type:     models.MessageTypeImage,
		Content:  caption,
		Metadata: models.MessageMeta{
			MediaURL:    mediaURL,
			MediaStatus: models.MediaStatusResolved,
			Caption:     caption,
		},
	}, mediaURL)
}

func (s *AgentService) sendAgentMessage(
	ctx context.Context,
	tenant *models.Tenant,
	channel *models.Channel,
	customer *models.Customer,
	chat *models.Chat,
	message *models.Message,
	mediaURL string,
) (*models.Message, error) {
	if err := s.messages.Create(message); err != nil {
		return nil, fmt.Errorf("failed to persist agent message: %w", err)
	}

	provider, err := s.providerFor(channel)
	if err != nil {
		return nil, err
	}

	var providerMessageID string
	if mediaURL != "" {
		providerMessageID, err = provider.SendMedia(ctx, customer.Phone, mediaURL, message.Content)
		if err != nil {
			fallback := message.Content
			if fallback != "" {
				fallback += "\n"
			}
			providerMessageID, err = provider.SendText(ctx, customer.Phone, fallback+mediaURL)
		}
	} else {
		providerMessageID, err = provider.SendText(ctx, customer.Phone, message.Content)
	}
	if err != nil {
		if uerr := s.messages.UpdateDeliveryStatusByID(message.ID, models.DeliveryStatusFailed); uerr != nil {
			utils.LogError("failed to mark agent send failed", uerr, nil)
		}
		return nil, fmt.Errorf("failed to send agent message: %w", err)
	}

	if providerMessageID != "" {
		if err := s.messages.SetProviderID(message.ID, providerMessageID); err != nil {
			utils.LogError("failed to backfill provider id on agent send", err, map[string]interface{}{
				"message_id": message.ID,
			})
		}
		message.ProviderMessageID = providerMessageID
	}

	if err := s.chats.TouchLastMessage(chat.ID, time.Now()); err != nil {
		utils.LogError("failed to touch chat on agent send", err, nil)
	}

	return message, nil
}
