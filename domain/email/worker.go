package email

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/erlendps/thingbooker/pkg/logger"
)

var sentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "thingbooker_email_jobs_processed_total",
	Help: "Email jobs processed by the worker, by outcome.",
}, []string{"outcome"})

// Queue is the part of the job queue the worker drives.
type Queue interface {
	Dequeue(ctx context.Context, batchSize int) ([]*EmailJob, error)
	MarkSent(ctx context.Context, id string, messageID string) error
	MarkFailed(ctx context.Context, id string, jobErr error) error
	RecoverStaleJobs(ctx context.Context, staleThresholdMinutes int) (int, error)
}

// Worker polls the job queue and sends due emails.
//
// Stop waits for the batch in flight; jobs left in processing by a crash are
// recovered on the next start.
type Worker struct {
	jobs      Queue
	sender    Sender
	templates *TemplateService
	cfg       *Config
	log       *slog.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
	mu        sync.Mutex

	processedCount int64
	successCount   int64
	failureCount   int64
	metricsMu      sync.RWMutex
}

// NewWorker creates a new email worker
func NewWorker(jobs *JobsService, sender Sender, templates *TemplateService, cfg *Config, log *slog.Logger) *Worker {
	return newWorker(jobs, sender, templates, cfg, log)
}

func newWorker(jobs Queue, sender Sender, templates *TemplateService, cfg *Config, log *slog.Logger) *Worker {
	return &Worker{
		jobs:      jobs,
		sender:    sender,
		templates: templates,
		cfg:       cfg,
		log:       log.With(logger.Scope("email.worker")),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if !w.cfg.Enabled {
		w.log.Info("email worker not started (EMAIL_ENABLED=false)")
		return nil
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})

	// The fx start context ends once startup completes.
	runCtx := context.WithoutCancel(ctx)
	go w.recoverStaleJobsOnStartup(runCtx)

	w.log.Info("email worker starting",
		slog.Duration("poll_interval", w.cfg.WorkerInterval()),
		slog.Int("batch_size", w.cfg.WorkerBatchSize))

	go w.run(runCtx)
	return nil
}

// Stop gracefully stops the worker, waiting for the current batch
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	select {
	case <-w.stoppedCh:
		w.log.Info("email worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("email worker stop timeout, forcing shutdown")
	}
	return nil
}

func (w *Worker) recoverStaleJobsOnStartup(ctx context.Context) {
	recovered, err := w.jobs.RecoverStaleJobs(ctx, 10)
	if err != nil {
		w.log.Warn("failed to recover stale jobs on startup", logger.Error(err))
		return
	}
	if recovered > 0 {
		w.log.Info("recovered stale email jobs on startup", slog.Int("count", recovered))
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.stoppedCh)

	interval := w.cfg.WorkerInterval()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.log.Warn("process batch failed", logger.Error(err))
			}
		}
	}
}

// processBatch claims and sends one batch.
func (w *Worker) processBatch(ctx context.Context) error {
	jobs, err := w.jobs.Dequeue(ctx, w.cfg.WorkerBatchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.log.Warn("process job failed",
				slog.String("job_id", job.ID),
				logger.Error(err))
		}
	}
	return nil
}

func (w *Worker) processJob(ctx context.Context, job *EmailJob) error {
	startTime := time.Now()
	htmlContent, textContent := w.render(job)

	toName := ""
	if job.ToName != nil {
		toName = *job.ToName
	}

	result, err := w.sender.Send(ctx, SendOptions{
		To:      job.ToEmail,
		ToName:  toName,
		Subject: job.Subject,
		HTML:    htmlContent,
		Text:    textContent,
	})
	if err == nil && !result.Success {
		err = errors.New(result.Error)
	}
	if err != nil {
		if markErr := w.jobs.MarkFailed(ctx, job.ID, err); markErr != nil {
			w.log.Error("failed to mark job as failed",
				slog.String("job_id", job.ID),
				logger.Error(markErr))
		}
		w.record(false)
		return err
	}

	if err := w.jobs.MarkSent(ctx, job.ID, result.MessageID); err != nil {
		w.log.Error("failed to mark job as sent",
			slog.String("job_id", job.ID),
			logger.Error(err))
		return err
	}

	w.log.Debug("email sent",
		slog.String("job_id", job.ID),
		slog.String("template", job.TemplateName),
		slog.String("message_id", result.MessageID),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()))

	w.record(true)
	return nil
}

// render produces the HTML and text bodies, falling back to a generic
// message when the template is missing or fails.
func (w *Worker) render(job *EmailJob) (string, string) {
	templateContext := make(TemplateContext, len(job.TemplateData)+2)
	for k, v := range job.TemplateData {
		templateContext[k] = v
	}
	if _, ok := templateContext["title"]; !ok {
		templateContext["title"] = job.Subject
	}
	if _, ok := templateContext["recipientName"]; !ok && job.ToName != nil {
		templateContext["recipientName"] = *job.ToName
	}

	if w.templates != nil && w.templates.HasTemplate(job.TemplateName) {
		result, err := w.templates.Render(job.TemplateName, templateContext, DefaultLayout)
		if err == nil {
			return result.HTML, result.Text
		}
		w.log.Warn("template render failed, using fallback",
			slog.String("template", job.TemplateName),
			logger.Error(err))
	} else {
		w.log.Warn("template not found, using fallback", slog.String("template", job.TemplateName))
	}

	return fallbackHTML(job.Subject, templateContext), fallbackText(templateContext)
}

func greeting(ctx TemplateContext) string {
	if name, ok := ctx["recipientName"].(string); ok && name != "" {
		return "Hi " + name
	}
	return "Hi"
}

func fallbackHTML(subject string, ctx TemplateContext) string {
	body := `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>` + html.EscapeString(subject) + `</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #374151;">
  <p>` + html.EscapeString(greeting(ctx)) + `,</p>
  <p>` + html.EscapeString(subject) + `</p>`
	if msg, ok := ctx["message"].(string); ok && msg != "" {
		body += `
  <p>` + html.EscapeString(msg) + `</p>`
	}
	body += `
  <p style="font-size: 12px; color: #6b7280;">This email was sent by Thingbooker.</p>
</body>
</html>`
	return body
}

func fallbackText(ctx TemplateContext) string {
	text := greeting(ctx) + ",\n\n"
	if title, ok := ctx["title"].(string); ok {
		text += title
	}
	if msg, ok := ctx["message"].(string); ok && msg != "" {
		text += "\n\n" + msg
	}
	return text + "\n\n---\nThis email was sent by Thingbooker."
}

func (w *Worker) record(ok bool) {
	w.metricsMu.Lock()
	w.processedCount++
	if ok {
		w.successCount++
	} else {
		w.failureCount++
	}
	w.metricsMu.Unlock()

	if ok {
		sentCounter.WithLabelValues("sent").Inc()
	} else {
		sentCounter.WithLabelValues("failed").Inc()
	}
}

// Metrics returns current worker metrics
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()

	return WorkerMetrics{
		Processed: w.processedCount,
		Succeeded: w.successCount,
		Failed:    w.failureCount,
	}
}

// WorkerMetrics contains worker metrics
type WorkerMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
