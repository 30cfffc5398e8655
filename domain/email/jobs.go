package email

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/erlendps/thingbooker/pkg/logger"
)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = time.Hour

// JobsService manages the email job queue.
type JobsService struct {
	db  bun.IDB
	log *slog.Logger
	cfg *Config
}

// NewJobsService creates a new email jobs service
func NewJobsService(db bun.IDB, log *slog.Logger, cfg *Config) *JobsService {
	return &JobsService{
		db:  db,
		log: log.With(logger.Scope("email.jobs")),
		cfg: cfg,
	}
}

// EnqueueOptions contains options for enqueuing an email job
type EnqueueOptions struct {
	TemplateName string
	ToEmail      string
	ToName       *string
	Subject      string
	TemplateData map[string]any
	SourceType   *string
	SourceID     *string
	MaxAttempts  *int
}

// Enqueue creates a new email job ready for immediate processing.
//
// next_retry_at uses the database clock so it compares consistently with
// the Dequeue query.
func (s *JobsService) Enqueue(ctx context.Context, opts EnqueueOptions) (*EmailJob, error) {
	if opts.TemplateName == "" || opts.ToEmail == "" {
		return nil, errors.New("enqueue email job: template and recipient are required")
	}

	maxAttempts := s.cfg.MaxRetries
	if opts.MaxAttempts != nil {
		maxAttempts = *opts.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	templateData := opts.TemplateData
	if templateData == nil {
		templateData = make(map[string]any)
	}
	templateDataJSON, err := json.Marshal(templateData)
	if err != nil {
		return nil, fmt.Errorf("marshal template data: %w", err)
	}

	job := &EmailJob{}
	err = s.db.NewRaw(`INSERT INTO tb.email_jobs (
		template_name, to_email, to_name, subject, template_data,
		status, attempts, max_attempts, source_type, source_id, next_retry_at
	) VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, ?, ?, now())
	RETURNING *`,
		opts.TemplateName,
		opts.ToEmail,
		opts.ToName,
		opts.Subject,
		string(templateDataJSON),
		maxAttempts,
		opts.SourceType,
		opts.SourceID,
	).Scan(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue email job: %w", err)
	}

	s.log.Debug("enqueued email job",
		slog.String("job_id", job.ID),
		slog.String("to_email", job.ToEmail),
		slog.String("template", job.TemplateName))

	return job, nil
}

// Dequeue atomically claims up to batchSize due jobs. FOR UPDATE SKIP LOCKED
// lets several workers poll the same table without claiming a job twice.
func (s *JobsService) Dequeue(ctx context.Context, batchSize int) ([]*EmailJob, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.WorkerBatchSize
	}

	var jobs []*EmailJob
	err := s.db.NewRaw(`WITH cte AS (
		SELECT id FROM tb.email_jobs
		WHERE status = 'pending'
			AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT ?
	)
	UPDATE tb.email_jobs j
	SET status = 'processing',
		attempts = attempts + 1
	FROM cte WHERE j.id = cte.id
	RETURNING j.*`, batchSize).Scan(ctx, &jobs)
	if err != nil {
		return nil, fmt.Errorf("dequeue email jobs: %w", err)
	}

	return jobs, nil
}

// MarkSent marks a job as sent successfully
func (s *JobsService) MarkSent(ctx context.Context, id string, messageID string) error {
	_, err := s.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobStatusSent).
		Set("mailgun_message_id = ?", messageID).
		Set("processed_at = now()").
		Set("last_error = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	s.log.Debug("email job marked as sent",
		slog.String("job_id", id),
		slog.String("message_id", messageID))

	return nil
}

// MarkFailed records a failed attempt. The job goes back to pending with a
// backoff while attempts remain, and to the dead letter state otherwise.
func (s *JobsService) MarkFailed(ctx context.Context, id string, jobErr error) error {
	job := &EmailJob{}
	err := s.db.NewSelect().
		Model(job).
		Column("id", "attempts", "max_attempts").
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Warn("email job not found when marking as failed", slog.String("job_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get job for mark failed: %w", err)
	}

	errorMessage := truncateError(jobErr.Error())

	if job.Attempts < job.MaxAttempts {
		delay := retryDelay(s.cfg.RetryDelaySec, job.Attempts)
		_, err = s.db.NewRaw(`UPDATE tb.email_jobs
			SET status = 'pending',
				last_error = ?,
				next_retry_at = now() + (? || ' seconds')::interval
			WHERE id = ?`,
			errorMessage, fmt.Sprintf("%d", int(delay.Seconds())), id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("requeue failed job: %w", err)
		}

		s.log.Warn("email job failed, retrying",
			slog.String("job_id", id),
			slog.Int("attempt", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("retry_delay", delay),
			slog.String("error", errorMessage))
		return nil
	}

	_, err = s.db.NewUpdate().
		Model((*EmailJob)(nil)).
		Set("status = ?", JobStatusDeadLetter).
		Set("last_error = ?", errorMessage).
		Set("processed_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark as dead letter: %w", err)
	}

	s.log.Error("email job moved to dead letter queue",
		slog.String("job_id", id),
		slog.Int("attempts", job.Attempts),
		slog.String("error", errorMessage))

	return nil
}

// RecoverStaleJobs puts jobs stuck in processing back to pending. This
// happens when the server stops while a batch is in flight.
func (s *JobsService) RecoverStaleJobs(ctx context.Context, staleThresholdMinutes int) (int, error) {
	if staleThresholdMinutes <= 0 {
		staleThresholdMinutes = 10
	}

	result, err := s.db.NewRaw(`UPDATE tb.email_jobs
		SET status = 'pending',
			next_retry_at = now()
		WHERE status = 'processing'
			AND created_at < now() - (? || ' minutes')::interval`,
		fmt.Sprintf("%d", staleThresholdMinutes)).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.log.Warn("recovered stale email jobs",
			slog.Int64("count", count),
			slog.Int("threshold_minutes", staleThresholdMinutes))
	}

	return int(count), nil
}

// PurgeSent deletes sent jobs processed longer ago than retention.
func (s *JobsService) PurgeSent(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	result, err := s.db.NewDelete().
		Model((*EmailJob)(nil)).
		Where("status = ?", JobStatusSent).
		Where("processed_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge sent jobs: %w", err)
	}

	count, _ := result.RowsAffected()
	return int(count), nil
}

// GetJobsBySource retrieves jobs by source type and ID, newest first
func (s *JobsService) GetJobsBySource(ctx context.Context, sourceType, sourceID string) ([]*EmailJob, error) {
	var jobs []*EmailJob
	err := s.db.NewSelect().
		Model(&jobs).
		Where("source_type = ?", sourceType).
		Where("source_id = ?", sourceID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get jobs by source: %w", err)
	}

	return jobs, nil
}

// Stats returns queue statistics
func (s *JobsService) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	err := s.db.NewRaw(`SELECT
		COUNT(*) FILTER (WHERE status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE status = 'processing') AS processing,
		COUNT(*) FILTER (WHERE status = 'sent') AS sent,
		COUNT(*) FILTER (WHERE status = 'dead_letter') AS dead_letter
	FROM tb.email_jobs`).Scan(ctx, &stats.Pending, &stats.Processing, &stats.Sent, &stats.DeadLetter)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	return stats, nil
}

// retryDelay is base * attempts^2 seconds, capped at maxRetryDelay.
func retryDelay(baseSec, attempts int) time.Duration {
	if baseSec <= 0 {
		baseSec = 60
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(baseSec) * time.Duration(attempts*attempts) * time.Second
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// truncateError truncates an error message to 1000 characters
func truncateError(msg string) string {
	if len(msg) > 1000 {
		return msg[:1000]
	}
	return msg
}
