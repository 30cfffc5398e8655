package email

import (
	"time"

	"github.com/uptrace/bun"
)

// JobStatus represents the processing status of an email job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusDeadLetter JobStatus = "dead_letter" // gave up after max attempts
)

// EmailJob is a queued email. The worker renders its template and sends it;
// failed sends are retried with backoff until MaxAttempts is reached.
type EmailJob struct {
	bun.BaseModel `bun:"table:tb.email_jobs,alias:ej"`

	ID               string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TemplateName     string     `bun:"template_name,notnull"`
	ToEmail          string     `bun:"to_email,notnull"`
	ToName           *string    `bun:"to_name"`
	Subject          string     `bun:"subject,notnull"`
	TemplateData     JSON       `bun:"template_data,type:jsonb,notnull,default:'{}'"`
	Status           JobStatus  `bun:"status,notnull,default:'pending'"`
	Attempts         int        `bun:"attempts,notnull,default:0"`
	MaxAttempts      int        `bun:"max_attempts,notnull,default:3"`
	LastError        *string    `bun:"last_error"`
	MailgunMessageID *string    `bun:"mailgun_message_id"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:now()"`
	ProcessedAt      *time.Time `bun:"processed_at"`
	NextRetryAt      *time.Time `bun:"next_retry_at"`
	SourceType       *string    `bun:"source_type"`
	SourceID         *string    `bun:"source_id,type:uuid"`
}

// JSON is a helper type for JSONB columns
type JSON map[string]any

// QueueStats contains queue statistics
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	DeadLetter int64 `json:"deadLetter"`
}
