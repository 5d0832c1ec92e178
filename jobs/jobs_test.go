package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	netmail "net/mail"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/inventra/inventra/internal/fulfillment"
	jobmetrics "github.com/inventra/inventra/internal/jobs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg SendEmailPayload) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestEmailJobDeliversPayload(t *testing.T) {
	mailer := &recordingMailer{}
	job := NewEmailJob(mailer, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSendEmailTask(SendEmailPayload{To: "owner@example.com", Subject: "Low stock", Body: "<p>hi</p>"})
	require.NoError(t, err)
	require.Equal(t, TaskTypeSendEmail, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "owner@example.com", mailer.sent[0].To)
}

func TestEmailJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewEmailJob(&recordingMailer{}, discardLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(SendEmailPayload{Subject: "no recipient"})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailJobReturnsDeliveryErrorForRetry(t *testing.T) {
	boom := errors.New("relay down")
	job := NewEmailJob(&recordingMailer{err: boom}, discardLogger(), nil)
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.com"})
	require.NoError(t, err)

	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

type recordingSender struct {
	messages []*mail.Msg
	err      error
}

func (s *recordingSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.messages = append(s.messages, messages...)
	return s.err
}

func newTestMailer(sender smtpSender) *SMTPMailer {
	return &SMTPMailer{
		from:   "noreply@inventra.local",
		client: sender,
		now:    func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) },
	}
}

func TestSMTPMailerBuildsEncodedHTMLMessage(t *testing.T) {
	sender := &recordingSender{}
	mailer := newTestMailer(sender)

	err := mailer.Send(context.Background(), SendEmailPayload{To: "owner@example.com", Subject: "Stok rendah: Café\r\nBcc: x@example.com", Body: "<b>body</b>"})
	require.NoError(t, err)
	require.Len(t, sender.messages, 1)

	var buf bytes.Buffer
	_, err = sender.messages[0].WriteTo(&buf)
	require.NoError(t, err)
	parsed, err := netmail.ReadMessage(&buf)
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	require.Equal(t, "Stok rendah: Café  Bcc: x@example.com", subject)
	require.Empty(t, parsed.Header.Get("Bcc"))
	require.Contains(t, parsed.Header.Get("To"), "owner@example.com")
	require.Contains(t, parsed.Header.Get("Content-Type"), "text/html")
	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "<b>body</b>")
}

func TestSMTPMailerRejectsInjectedRecipient(t *testing.T) {
	sender := &recordingSender{}
	mailer := newTestMailer(sender)

	err := mailer.Send(context.Background(), SendEmailPayload{To: "a@example.com\r\nBcc: spy@example.com", Subject: "Hi"})
	require.Error(t, err)
	require.Empty(t, sender.messages)

	require.Error(t, mailer.Send(context.Background(), SendEmailPayload{To: "  "}))
}

func TestSMTPMailerPassesContextToRelay(t *testing.T) {
	sender := &recordingSender{}
	mailer := newTestMailer(sender)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, mailer.Send(ctx, SendEmailPayload{To: "a@example.com"}), context.Canceled)
	require.Empty(t, sender.messages)
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	_, err := NewSMTPMailer("", 25, "noreply@inventra.local", "", "")
	require.Error(t, err)

	mailer, err := NewSMTPMailer("mail.local", 1025, "noreply@inventra.local", "user", "secret")
	require.NoError(t, err)
	require.NotNil(t, mailer.client)
}

type stubLowStock struct {
	alerts []fulfillment.LowStockAlert
	got    [][]fulfillment.LowStockAlert
}

func (s *stubLowStock) ListLowStock(context.Context) ([]fulfillment.LowStockAlert, error) {
	return s.alerts, nil
}

func (s *stubLowStock) NotifyLowStockDigest(_ context.Context, alerts []fulfillment.LowStockAlert) error {
	s.got = append(s.got, alerts)
	return nil
}

func TestLowStockDigestNotifiesOnlyWhenNeeded(t *testing.T) {
	stub := &stubLowStock{}
	job := &LowStockDigestJob{Source: stub, Notifier: stub, Logger: discardLogger()}
	task, err := NewScheduledTask(TaskLowStockDigest, time.Now())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, stub.got)

	stub.alerts = []fulfillment.LowStockAlert{{Kind: fulfillment.KindPart, ID: "P1", Name: "Bolt", Quantity: 3, ReorderPoint: 50}}
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, stub.got, 1)
	require.Equal(t, "P1", stub.got[0][0].ID)
}

type warmerFunc func(context.Context) error

func (f warmerFunc) Warm(ctx context.Context) error { return f(ctx) }

func TestDashboardWarmupAppliesTimeout(t *testing.T) {
	var hadDeadline bool
	job := &DashboardWarmupJob{Warmer: warmerFunc(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}), Logger: discardLogger()}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, nil)))
	require.True(t, hadDeadline)
}

type cleanerFunc func(context.Context, time.Duration) (int64, error)

func (f cleanerFunc) Cleanup(ctx context.Context, d time.Duration) (int64, error) { return f(ctx, d) }

func TestIdempotencyCleanupUsesDefaultRetention(t *testing.T) {
	var got time.Duration
	job := &IdempotencyCleanupJob{Cleaner: cleanerFunc(func(_ context.Context, d time.Duration) (int64, error) {
		got = d
		return 4, nil
	}), Logger: discardLogger()}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 7*24*time.Hour, got)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthReportsQueueDepth(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 2, Retry: 1}}, discardLogger()).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 2, body.Pending)
	require.Equal(t, 1, body.Retry)
}

func TestHealthUnavailable(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, discardLogger()).MountRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
