package repositories

import (
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UsageRepo interface {
	// IncrementAgentInvocations adds one invocation to the tenant's
	// current monthly period, creating the period row on first use.
	IncrementAgentInvocations(tenantID uuid.UUID) error
	GetCurrent(tenantID uuid.UUID) (*models.UsageRecord, error)
}

type usageRepo struct {
	db *gorm.DB
}

func NewUsageRepo(db *gorm.DB) UsageRepo {
	return &usageRepo{db: db}
}

func (r *usageRepo) IncrementAgentInvocations(tenantID uuid.UUID) error {
	return r.db.Exec(`
		INSERT INTO usage_records (id, tenant_id, period_start, period_end, agent_invocations, created_at, updated_at)
		VALUES (gen_random_uuid(), ?, date_trunc('month', CURRENT_DATE), (date_trunc('month', CURRENT_DATE) + interval '1 month' - interval '1 day')::date, 1, now(), now())
		ON CONFLICT (tenant_id, period_start)
		DO UPDATE SET agent_invocations = usage_records.agent_invocations + 1, updated_at = now()
	`, tenantID).Error
}

func (r *usageRepo) GetCurrent(tenantID uuid.UUID) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := r.db.Where(
		"tenant_id = ? AND CURRENT_DATE BETWEEN period_start AND period_end",
		tenantID,
	).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
