package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
	"github.com/inventra/inventra/jobs"
)

// RepositoryPort abstracts notification persistence.
type RepositoryPort interface {
	RecipientsByRoles(ctx context.Context, roles []rbac.Role) ([]Recipient, error)
	Insert(ctx context.Context, items []Notification) error
	List(ctx context.Context, receiverID string, page shared.PageRequest) ([]Notification, error)
	UnreadCount(ctx context.Context, receiverID string) (int, error)
	MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, receiverID string) (int64, error)
}

// Publisher pushes a persisted notification to live listeners.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// EmailEnqueuer queues an email for background delivery.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) error
}

// Observer records dispatch outcomes.
type Observer interface {
	NotificationSent(kind string, err error)
}

// Service fans events out to recipients.
type Service struct {
	repo      RepositoryPort
	publisher Publisher
	email     EmailEnqueuer
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the notification service. publisher, email and observer
// may be nil.
func NewService(repo RepositoryPort, publisher Publisher, email EmailEnqueuer, observer Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		email:     email,
		observer:  observer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send persists one notification per recipient, then publishes and enqueues
// emails. Publish and enqueue failures are logged and do not fail the call.
func (s *Service) Send(ctx context.Context, ev Event) (err error) {
	defer func() {
		if s.observer != nil {
			s.observer.NotificationSent(string(ev.Type), err)
		}
	}()
	if err := ev.Validate(); err != nil {
		return err
	}
	recipients, err := s.repo.RecipientsByRoles(ctx, RecipientRoles(ev.Type))
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil
	}
	now := s.now()
	items := make([]Notification, len(recipients))
	for i, rc := range recipients {
		items[i] = Notification{
			ID:         uuid.NewString(),
			ReceiverID: rc.UserID,
			Type:       ev.Type,
			Title:      ev.Title,
			Content:    ev.Content,
			OrderID:    optional(ev.OrderID),
			ProductID:  optional(ev.ProductID),
			PartID:     optional(ev.PartID),
			CreatedAt:  now,
		}
	}
	if err := s.repo.Insert(ctx, items); err != nil {
		return fmt.Errorf("persist notifications: %w", err)
	}

	logger := s.logger.With(slog.String("type", string(ev.Type)))
	for i, rc := range recipients {
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, items[i]); err != nil {
				logger.Warn("publish notification", slog.String("receiver_id", rc.UserID), slog.Any("error", err))
			}
		}
		if s.email == nil || rc.Email == "" {
			continue
		}
		body, err := RenderEmail(ev, rc)
		if err != nil {
			logger.Warn("render notification email", slog.Any("error", err))
			continue
		}
		if err := s.email.EnqueueSendEmail(ctx, jobs.SendEmailPayload{To: rc.Email, Subject: ev.Title, Body: body}); err != nil {
			logger.Warn("enqueue notification email", slog.String("to", rc.Email), slog.Any("error", err))
		}
	}
	return nil
}

// NotifyLowStockDigest sends a single digest covering every alert.
func (s *Service) NotifyLowStockDigest(ctx context.Context, alerts []fulfillment.LowStockAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	rows := make([]Row, len(alerts))
	names := make([]string, 0, 3)
	for i, a := range alerts {
		rows[i] = Row{
			Label: fmt.Sprintf("%s %s", strings.ToUpper(string(a.Kind)), a.ID),
			Value: fmt.Sprintf("%s: %d left (reorder point %d)", a.Name, a.Quantity, a.ReorderPoint),
		}
		if i < 3 {
			names = append(names, a.Name)
		}
	}
	content := fmt.Sprintf("%d items are at or below their reorder point: %s", len(alerts), strings.Join(names, ", "))
	if len(alerts) > len(names) {
		content += fmt.Sprintf(" and %d more", len(alerts)-len(names))
	}
	return s.Send(ctx, Event{
		Type:    TypeLowStockDigest,
		Title:   fmt.Sprintf("Low stock digest: %d items", len(alerts)),
		Content: content,
		Rows:    rows,
	})
}

// List returns the receiver's notifications; Total is the unread count.
func (s *Service) List(ctx context.Context, receiverID string, page shared.PageRequest) (shared.Page[Notification], error) {
	rows, err := s.repo.List(ctx, receiverID, page)
	if err != nil {
		return shared.Page[Notification]{}, err
	}
	unread, err := s.repo.UnreadCount(ctx, receiverID)
	if err != nil {
		return shared.Page[Notification]{}, err
	}
	return shared.NewPage(rows, unread, page.Limit, func(n Notification) shared.Cursor {
		return shared.Cursor{UpdatedAt: n.CreatedAt, ID: n.ID}
	}), nil
}

// UnreadCount counts the receiver's unread notifications.
func (s *Service) UnreadCount(ctx context.Context, receiverID string) (int, error) {
	return s.repo.UnreadCount(ctx, receiverID)
}

// MarkRead flags notifications owned by the receiver as read.
func (s *Service) MarkRead(ctx context.Context, receiverID string, in MarkReadInput) (int64, error) {
	return s.repo.MarkRead(ctx, receiverID, in.NotificationIDs)
}

// MarkAllRead flags all of the receiver's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, receiverID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, receiverID)
}
