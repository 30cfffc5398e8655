package email

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

// Module provides the email job queue, templates, sender and worker
var Module = fx.Module("email",
	fx.Provide(
		NewConfig,
		NewJobsService,
		NewTemplateService,
		NewSender,
		NewWorker,
	),
	fx.Invoke(RegisterWorkerLifecycle),
)

// NewSender uses Mailgun when configured, otherwise a sender that only logs.
func NewSender(log *slog.Logger, cfg *Config) Sender {
	if cfg.IsConfigured() && cfg.Enabled {
		if mailgunSender := NewMailgunSender(cfg, log); mailgunSender != nil {
			log.Info("using Mailgun sender",
				slog.String("domain", cfg.MailgunDomain),
				slog.String("from", cfg.FromEmail))
			return mailgunSender
		}
	}

	log.Info("using no-op email sender (Mailgun not configured or email disabled)")
	return &noOpSender{log: log}
}

// RegisterWorkerLifecycle registers the email worker with fx lifecycle
func RegisterWorkerLifecycle(lc fx.Lifecycle, worker *Worker, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return worker.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
}
