package notify

import (
	"context"

	"github.com/erlendps/thingbooker/domain/email"
)

// Enqueuer is the part of the email job queue the sender needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, opts email.EnqueueOptions) (*email.EmailJob, error)
}

// EmailSender queues messages as email jobs; the email worker sends them.
type EmailSender struct {
	jobs Enqueuer
}

// NewEmailSender creates a sender backed by the email job queue
func NewEmailSender(jobs *email.JobsService) *EmailSender {
	return &EmailSender{jobs: jobs}
}

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	opts := email.EnqueueOptions{
		TemplateName: msg.Template,
		ToEmail:      msg.To,
		Subject:      msg.Subject,
		TemplateData: msg.Data,
	}
	if msg.ToName != "" {
		opts.ToName = &msg.ToName
	}
	if msg.SourceType != "" {
		opts.SourceType = &msg.SourceType
	}
	if msg.SourceID != "" {
		opts.SourceID = &msg.SourceID
	}
	_, err := s.jobs.Enqueue(ctx, opts)
	return err
}
