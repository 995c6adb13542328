package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying"
	StatusCancelled  JobStatus = "cancelled"
)

// Job types used by the pipeline
const (
	TypeGroupFlush = "group.flush"
	TypeMediaFetch = "media.fetch"
)

// Job is a durable background task. The grouping buffer's debounce timer
// is realized as a scheduled group.flush job so a pending flush survives
// process restarts; media resolution runs as media.fetch jobs outside the
// synchronous webhook path.
type Job struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Queue    string    `gorm:"type:varchar(100);not null;index"`
	Type     string    `gorm:"type:varchar(100);not null"`
	Payload  datatypes.JSON `gorm:"type:jsonb"`

	Status JobStatus `gorm:"type:varchar(20);not null;default:'pending';index"`

	Attempts   int `gorm:"not null;default:0"`
	MaxRetries int `gorm:"not null;default:3"`

	ScheduledAt *time.Time `gorm:"index"` // delayed jobs (debounce flush)
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	Error string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string {
	return "jobs"
}

// JobHandler is the interface that job handlers must implement
type JobHandler interface {
	Handle(ctx context.Context, job *Job) error
	GetType() string
}

// EnqueueOptions contains options for enqueueing a job
type EnqueueOptions struct {
	Queue      string
	MaxRetries int
	ScheduleAt *time.Time
}

// WorkerConfig contains configuration for job workers
type WorkerConfig struct {
	Queue        string
	Concurrency  int
	PollInterval time.Duration
	Timeout      time.Duration
}

// DefaultWorkerConfig returns default worker configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Queue:        "default",
		Concurrency:  5,
		PollInterval: 500 * time.Millisecond,
		Timeout:      2 * time.Minute,
	}
}
