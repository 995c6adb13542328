package repositories

import (
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupRepo interface {
	GetByID(id uuid.UUID) (*models.MessageGroup, error)
	// FindOpen returns the most recent unsent group for the customer
	// without creating one; gorm.ErrRecordNotFound when none is open.
	FindOpen(tenantID, customerID uuid.UUID) (*models.MessageGroup, error)
	// FindOpenOrCreate returns the most recent unsent group for the
	// customer, creating a fresh one when none is open. Runs inside a
	// transaction so two near-simultaneous messages cannot both insert;
	// if a race still slips through, both groups flush independently.
	FindOpenOrCreate(tenantID, customerID, chatID uuid.UUID) (*models.MessageGroup, error)
	// AppendItem adds a member and extends the activity timestamp, only
	// while the group is still unsent. Returns gorm.ErrRecordNotFound if
	// the group was flushed in the meantime.
	AppendItem(groupID uuid.UUID, item models.GroupItem) (*models.MessageGroup, error)
	// MarkSent flips the sent flag; reports false when the group was
	// already flushed by a competing invocation.
	MarkSent(groupID uuid.UUID) (bool, error)
	// UpdateItemContent rewrites a buffered member's content (media URL
	// resolution) while the group is unsent.
	UpdateItemContent(groupID uuid.UUID, messageID uuid.UUID, content string) error
	// ListOverdue returns unsent groups idle since before the cutoff.
	ListOverdue(cutoff time.Time, limit int) ([]models.MessageGroup, error)
}

type groupRepo struct {
	db *gorm.DB
}

func NewGroupRepo(db *gorm.DB) GroupRepo {
	return &groupRepo{db: db}
}

func (r *groupRepo) GetByID(id uuid.UUID) (*models.MessageGroup, error) {
	var group models.MessageGroup
	err := r.db.First(&group, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) FindOpen(tenantID, customerID uuid.UUID) (*models.MessageGroup, error) {
	var group models.MessageGroup
	err := r.db.Where("tenant_id = ? AND customer_id = ? AND sent = false", tenantID, customerID).
		Order("created_at DESC").
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) FindOpenOrCreate(tenantID, customerID, chatID uuid.UUID) (*models.MessageGroup, error) {
	var group models.MessageGroup

	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(lockingClause()).
			Where("tenant_id = ? AND customer_id = ? AND sent = false", tenantID, customerID).
			Order("created_at DESC").
			First(&group).Error
		if err == nil {
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		group = models.MessageGroup{
			TenantID:       tenantID,
			CustomerID:     customerID,
			ChatID:         chatID,
			Items:          models.GroupItems{},
			LastActivityAt: time.Now(),
		}
		return tx.Create(&group).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) AppendItem(groupID uuid.UUID, item models.GroupItem) (*models.MessageGroup, error) {
	var group models.MessageGroup

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(lockingClause()).
			Where("id = ? AND sent = false", groupID).
			First(&group).Error; err != nil {
			return err
		}

		item.Sequence = group.NextSequence()
		group.Items = append(group.Items, item)
		group.LastActivityAt = time.Now()
		return tx.Save(&group).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) MarkSent(groupID uuid.UUID) (bool, error) {
	result := r.db.Model(&models.MessageGroup{}).
		Where("id = ? AND sent = false", groupID).
		Update("sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *groupRepo) UpdateItemContent(groupID uuid.UUID, messageID uuid.UUID, content string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var group models.MessageGroup
		if err := tx.Clauses(lockingClause()).
			Where("id = ? AND sent = false", groupID).
			First(&group).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil // already flushed, message row carries the final URL
			}
			return err
		}

		changed := false
		for i := range group.Items {
			if group.Items[i].MessageID == messageID.String() {
				group.Items[i].Content = content
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return tx.Save(&group).Error
	})
}

func (r *groupRepo) ListOverdue(cutoff time.Time, limit int) ([]models.MessageGroup, error) {
	var groups []models.MessageGroup
	query := r.db.Where("sent = false AND last_activity_at < ?", cutoff).
		Order("last_activity_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&groups).Error
	return groups, err
}
