package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/agent"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/jobs"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enqueuer is the slice of the job queue the buffer needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload interface{}, opts jobs.EnqueueOptions) (*jobs.Job, error)
}

// flushPayload is the group.flush job body. Sequence pins the job to the
// group state that scheduled it: a newer member schedules its own job and
// the stale one becomes a no-op, which is what re-arms the window.
type flushPayload struct {
	GroupID  string `json:"group_id"`
	Sequence int    `json:"sequence"`
}

// BufferService accumulates consecutive customer text messages per
// (tenant, customer) and flushes them to the agent as one turn after the
// tenant's quiet window elapses. The window is inactivity-based: every
// appended message schedules a fresh flush job carrying its own sequence
// number, superseding the previous one.
type BufferService struct {
	groups    repositories.GroupRepo
	tenants   repositories.TenantRepo
	customers repositories.CustomerRepo
	chats     repositories.ChatRepo
	channels  repositories.ChannelRepo

	queue Enqueuer
	agent *AgentService

	defaultBufferSecs int
}

func NewBufferService(
	groups repositories.GroupRepo,
	tenants repositories.TenantRepo,
	customers repositories.CustomerRepo,
	chats repositories.ChatRepo,
	channels repositories.ChannelRepo,
	queue Enqueuer,
	agentSvc *AgentService,
	defaultBufferSecs int,
) *BufferService {
	if defaultBufferSecs <= 0 {
		defaultBufferSecs = 6
	}

	return &BufferService{
		groups:            groups,
		tenants:           tenants,
		customers:         customers,
		chats:             chats,
		channels:          channels,
		queue:             queue,
		agent:             agentSvc,
		defaultBufferSecs: defaultBufferSecs,
	}
}

// Append adds a persisted message to the customer's open group (creating
// one on the first member) and re-arms the debounce window.
func (s *BufferService) Append(ctx context.Context, tenant *models.Tenant, customer *models.Customer, chat *models.Chat, message *models.Message) error {
	group, err := s.groups.FindOpenOrCreate(tenant.ID, customer.ID, chat.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve open group: %w", err)
	}

	if group.HasProviderMessage(message.ProviderMessageID) {
		return nil
	}

	item := models.GroupItem{
		MessageID:         message.ID.String(),
		ProviderMessageID: message.ProviderMessageID,
		Type:              message.Type,
		Content:           message.Content,
	}

	group, err = s.groups.AppendItem(group.ID, item)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Flushed between lookup and append; start a fresh group.
		group, err = s.groups.FindOpenOrCreate(tenant.ID, customer.ID, chat.ID)
		if err != nil {
			return fmt.Errorf("failed to reopen group: %w", err)
		}
		group, err = s.groups.AppendItem(group.ID, item)
	}
	if err != nil {
		return fmt.Errorf("failed to append to group: %w", err)
	}

	return s.armFlush(ctx, tenant, group)
}

// AppendToGroup appends to a specific open group, used when a mid-burst
// media message joins the pending turn.
func (s *BufferService) AppendToGroup(ctx context.Context, tenant *models.Tenant, groupID uuid.UUID, message *models.Message) (*models.MessageGroup, error) {
	group, err := s.groups.AppendItem(groupID, models.GroupItem{
		MessageID:         message.ID.String(),
		ProviderMessageID: message.ProviderMessageID,
		Type:              message.Type,
		Content:           message.Content,
	})
	if err != nil {
		return nil, err
	}

	if err := s.armFlush(ctx, tenant, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *BufferService) armFlush(ctx context.Context, tenant *models.Tenant, group *models.MessageGroup) error {
	window := s.windowFor(tenant)
	runAt := time.Now().Add(window)

	_, err := s.queue.Enqueue(ctx, tenant.ID, jobs.TypeGroupFlush, flushPayload{
		GroupID:  group.ID.String(),
		Sequence: group.LastSequence(),
	}, jobs.EnqueueOptions{ScheduleAt: &runAt})
	if err != nil {
		return fmt.Errorf("failed to schedule flush: %w", err)
	}

	utils.LogInfo("⏳ debounce window armed", map[string]interface{}{
		"group_id": group.ID,
		"sequence": group.LastSequence(),
		"window":   window.String(),
	})
	return nil
}

func (s *BufferService) windowFor(tenant *models.Tenant) time.Duration {
	secs := tenant.BufferSeconds
	if secs <= 0 {
		secs = s.defaultBufferSecs
	}
	return time.Duration(secs) * time.Second
}

// Flush packages the group's members in sequence order and hands them to
// the agent as one turn. The conditional sent-flag claim guarantees a
// group flushes at most once even when a scheduled job and the overdue
// sweeper race.
func (s *BufferService) Flush(ctx context.Context, group *models.MessageGroup) error {
	tenant, err := s.tenants.GetByID(group.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	customer, err := s.customers.GetByID(group.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load customer: %w", err)
	}
	chat, err := s.chats.GetByID(group.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}
	channel, err := s.channels.GetByID(chat.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to load channel: %w", err)
	}

	// Claim before dispatch: once sent is set this turn never runs
	// again, even if the invocation below fails.
	claimed, err := s.groups.MarkSent(group.ID)
	if err != nil {
		return fmt.Errorf("failed to claim group: %w", err)
	}
	if !claimed {
		return nil
	}

	// A human may have taken over after the burst started; the messages
	// stay persisted, the agent is simply not invoked.
	if !customer.AIAgentEnabled || !chat.AIAgentEnabled {
		utils.LogInfo("🔕 agent disabled, group flushed without invocation", map[string]interface{}{
			"group_id":    group.ID,
			"customer_id": customer.ID,
		})
		return nil
	}

	turn := make([]agent.TurnMessage, 0, len(group.Items))
	for _, item := range group.Items {
		turn = append(turn, agent.TurnMessage{
			Sequence: item.Sequence,
			Type:     item.Type,
			Content:  item.Content,
		})
	}

	if err := s.agent.InvokeTurn(ctx, tenant, channel, customer, chat, turn); err != nil {
		// The claim is not rolled back: the job row keeps the error for
		// operator visibility and retries would double-charge usage.
		utils.LogError("group flush failed after claim", err, map[string]interface{}{
			"group_id": group.ID,
		})
		return err
	}

	utils.LogInfo("📦 group flushed", map[string]interface{}{
		"group_id": group.ID,
		"members":  len(group.Items),
	})
	return nil
}

// GroupFlushHandler runs scheduled group.flush jobs.
type GroupFlushHandler struct {
	buffer *BufferService
	groups repositories.GroupRepo
}

func NewGroupFlushHandler(buffer *BufferService, groups repositories.GroupRepo) *GroupFlushHandler {
	return &GroupFlushHandler{buffer: buffer, groups: groups}
}

func (h *GroupFlushHandler) GetType() string {
	return jobs.TypeGroupFlush
}

func (h *GroupFlushHandler) Handle(ctx context.Context, job *jobs.Job) error {
	var p flushPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("invalid flush payload: %w", err)
	}

	groupID, err := uuid.Parse(p.GroupID)
	if err != nil {
		return fmt.Errorf("invalid group id: %w", err)
	}

	group, err := h.groups.GetByID(groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}

	if group.Sent {
		return nil
	}
	// A newer member re-armed the window with its own job; this one is
	// superseded.
	if group.LastSequence() != p.Sequence {
		return nil
	}

	return h.buffer.Flush(ctx, group)
}

// SweepOverdue flushes unsent groups whose window elapsed without their
// scheduled job running, the recovery path after a process restart.
func (s *BufferService) SweepOverdue(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.defaultBufferSecs) * time.Second)

	groups, err := s.groups.ListOverdue(cutoff, 100)
	if err != nil {
		utils.LogError("overdue group sweep failed", err, nil)
		return
	}

	for i := range groups {
		group := &groups[i]

		tenant, err := s.tenants.GetByID(group.TenantID)
		if err != nil {
			utils.LogError("sweep: failed to load tenant", err, map[string]interface{}{
				"group_id": group.ID,
			})
			continue
		}
		if time.Since(group.LastActivityAt) < s.windowFor(tenant) {
			continue
		}

		if err := s.Flush(ctx, group); err != nil {
			utils.LogError("sweep: flush failed", err, map[string]interface{}{
				"group_id": group.ID,
			})
		}
	}
}
