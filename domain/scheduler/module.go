package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/email"
	"github.com/erlendps/thingbooker/domain/invites"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/logger"
)

// Module provides scheduled housekeeping tasks
var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	Jobs      *email.JobsService
	Limiter   *invites.AcceptLimiter
	Log       *slog.Logger
	Cfg       *config.Config
}

// RegisterTasks registers all scheduled tasks. A task with an invalid
// schedule is logged and skipped.
func RegisterTasks(p TaskParams) error {
	cfg := p.Cfg.Scheduler
	if !cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}
	return registerTasks(p.Scheduler, p.Jobs, p.Limiter, cfg, p.Log)
}

func registerTasks(s *Scheduler, jobs EmailQueue, limiter Pruner, cfg config.SchedulerConfig, log *slog.Logger) error {
	stale := NewStaleEmailJobTask(jobs, cfg.StaleEmailJobMinutes, log)
	if err := s.AddCronTask("stale_email_jobs", cfg.StaleEmailJobSchedule, stale.Run); err != nil {
		log.Error("failed to register stale email job task", logger.Error(err))
	}

	purge := NewEmailPurgeTask(jobs, cfg.EmailRetention, log)
	if err := s.AddCronTask("email_purge", cfg.EmailPurgeSchedule, purge.Run); err != nil {
		log.Error("failed to register email purge task", logger.Error(err))
	}

	if cfg.LimiterPruneInterval > 0 {
		prune := NewPruneTask("invite_accept_limiter", limiter, log)
		if err := s.AddIntervalTask("invite_limiter_prune", cfg.LimiterPruneInterval, prune.Run); err != nil {
			log.Error("failed to register limiter prune task", logger.Error(err))
		}
	}

	log.Info("registered scheduled tasks", slog.Any("tasks", s.ListTasks()))
	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *config.Config) {
	if !cfg.Scheduler.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
