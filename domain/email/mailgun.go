package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/erlendps/thingbooker/pkg/logger"
)

// sendTimeout bounds a single Mailgun API call.
const sendTimeout = 30 * time.Second

// Sender delivers a rendered email
type Sender interface {
	Send(ctx context.Context, opts SendOptions) (*SendResult, error)
}

// SendOptions contains options for sending an email
type SendOptions struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// SendResult contains the result of sending an email
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// MailgunSender sends emails via the Mailgun API.
type MailgunSender struct {
	cfg    *Config
	log    *slog.Logger
	client *mailgun.MailgunImpl
}

// NewMailgunSender creates a new Mailgun email sender.
// Returns nil if Mailgun is not configured.
func NewMailgunSender(cfg *Config, log *slog.Logger) *MailgunSender {
	if !cfg.IsConfigured() {
		return nil
	}

	client := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey)
	if cfg.MailgunAPIBase != "" {
		client.SetAPIBase(cfg.MailgunAPIBase)
	}

	return &MailgunSender{
		cfg:    cfg,
		log:    log.With(logger.Scope("email.mailgun")),
		client: client,
	}
}

// Send sends an email via Mailgun. API failures are reported in the result
// so the worker can schedule a retry.
func (s *MailgunSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	if !s.cfg.Enabled {
		return &SendResult{Error: "Email sending is disabled"}, nil
	}
	if err := s.validate(); err != nil {
		s.log.Error("email configuration invalid", logger.Error(err))
		return &SendResult{Error: err.Error()}, nil
	}

	message := s.client.NewMessage(formatAddress(s.cfg.FromName, s.cfg.FromEmail), opts.Subject, opts.Text, formatAddress(opts.ToName, opts.To))
	if opts.HTML != "" {
		message.SetHtml(opts.HTML)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, messageID, err := s.client.Send(sendCtx, message)
	if err != nil {
		s.log.Error("failed to send email",
			slog.String("to", opts.To),
			logger.Error(err))
		return &SendResult{Error: err.Error()}, nil
	}

	s.log.Info("email sent",
		slog.String("to", opts.To),
		slog.String("message_id", messageID))

	return &SendResult{Success: true, MessageID: messageID}, nil
}

func (s *MailgunSender) validate() error {
	if s.cfg.MailgunDomain == "" {
		return errors.New("MAILGUN_DOMAIN is required")
	}
	if s.cfg.MailgunAPIKey == "" {
		return errors.New("MAILGUN_API_KEY is required")
	}
	if s.cfg.FromEmail == "" {
		return errors.New("EMAIL_FROM_ADDRESS is required")
	}
	if s.cfg.FromName == "" {
		return errors.New("EMAIL_FROM_NAME is required")
	}
	return nil
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

// noOpSender logs instead of sending; used when Mailgun is not configured.
type noOpSender struct {
	log *slog.Logger
}

func (s *noOpSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	s.log.Info("email send (no-op)",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject))

	return &SendResult{
		Success:   true,
		MessageID: "noop-" + opts.To,
	}, nil
}
