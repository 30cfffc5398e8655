package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/erlendps/thingbooker/pkg/logger"
)

// EmailQueue is the part of the email job queue the housekeeping tasks use.
type EmailQueue interface {
	RecoverStaleJobs(ctx context.Context, staleThresholdMinutes int) (int, error)
	PurgeSent(ctx context.Context, retention time.Duration) (int, error)
}

// Pruner drops idle in-memory state.
type Pruner interface {
	Prune() int
}

// StaleEmailJobTask re-queues email jobs left in processing.
type StaleEmailJobTask struct {
	jobs    EmailQueue
	minutes int
	log     *slog.Logger
}

// NewStaleEmailJobTask creates a new stale email job task
func NewStaleEmailJobTask(jobs EmailQueue, minutes int, log *slog.Logger) *StaleEmailJobTask {
	return &StaleEmailJobTask{
		jobs:    jobs,
		minutes: minutes,
		log:     log.With(logger.Scope("scheduler.stale_email")),
	}
}

// Run executes the recovery
func (t *StaleEmailJobTask) Run(ctx context.Context) error {
	n, err := t.jobs.RecoverStaleJobs(ctx, t.minutes)
	if err != nil {
		return err
	}
	if n > 0 {
		t.log.Info("re-queued stale email jobs", slog.Int("count", n))
	}
	return nil
}

// EmailPurgeTask deletes sent email jobs past the retention window.
type EmailPurgeTask struct {
	jobs      EmailQueue
	retention time.Duration
	log       *slog.Logger
}

// NewEmailPurgeTask creates a new email purge task
func NewEmailPurgeTask(jobs EmailQueue, retention time.Duration, log *slog.Logger) *EmailPurgeTask {
	return &EmailPurgeTask{
		jobs:      jobs,
		retention: retention,
		log:       log.With(logger.Scope("scheduler.email_purge")),
	}
}

// Run executes the purge
func (t *EmailPurgeTask) Run(ctx context.Context) error {
	n, err := t.jobs.PurgeSent(ctx, t.retention)
	if err != nil {
		return err
	}
	t.log.Info("purged sent email jobs",
		slog.Int("count", n),
		slog.Duration("retention", t.retention))
	return nil
}

// PruneTask wraps a Pruner as a task.
type PruneTask struct {
	name   string
	target Pruner
	log    *slog.Logger
}

// NewPruneTask creates a task that prunes target
func NewPruneTask(name string, target Pruner, log *slog.Logger) *PruneTask {
	return &PruneTask{
		name:   name,
		target: target,
		log:    log.With(logger.Scope("scheduler.prune")),
	}
}

// Run executes the prune
func (t *PruneTask) Run(ctx context.Context) error {
	if n := t.target.Prune(); n > 0 {
		t.log.Debug("pruned idle entries", slog.String("target", t.name), slog.Int("count", n))
	}
	return nil
}
