package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/wneessen/go-mail"

	jobmetrics "github.com/inventra/inventra/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

type smtpSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer sends HTML mail through an SMTP relay, upgrading to STARTTLS when offered.
type SMTPMailer struct {
	from   string
	client smtpSender
	now    func() time.Time
}

// NewSMTPMailer builds a mailer; username and password are optional.
func NewSMTPMailer(host string, port int, from, username, password string) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if username != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(username), mail.WithPassword(password))
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return &SMTPMailer{from: from, client: client, now: time.Now}, nil
}

// Send delivers one message; ctx bounds dialing and the SMTP exchange.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if m == nil || m.client == nil {
		return errors.New("smtp mailer: not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("smtp mailer: empty recipient")
	}
	message, err := m.buildMessage(msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("smtp mailer: send to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(msg SendEmailPayload) (*mail.Msg, error) {
	message := mail.NewMsg()
	if err := message.From(m.from); err != nil {
		return nil, fmt.Errorf("smtp mailer: from address: %w", err)
	}
	if err := message.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp mailer: recipient %q: %w", msg.To, err)
	}
	message.Subject(sanitizeHeader(msg.Subject))
	message.SetDateWithValue(m.now().UTC())
	message.SetBodyString(mail.TypeTextHTML, msg.Body)
	return message, nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// EmailJob processes TaskTypeSendEmail tasks.
type EmailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEmailJob wires the email handler.
func NewEmailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailJob {
	return &EmailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle delivers one email. Malformed payloads are dropped without retry.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("email job: mailer not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email without recipient: %w", asynq.SkipRetry)
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskTypeSendEmail)
	defer func() { err = tracker.End(err) }()

	if err = j.Mailer.Send(ctx, payload); err != nil {
		loggerFor(j.Logger, TaskTypeSendEmail).Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AddProcessed(TaskTypeSendEmail, 1)
	return nil
}

func loggerFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
