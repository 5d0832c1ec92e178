package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// RepositoryPort abstracts customer persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, id string, updates map[string]any) (Customer, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]Customer, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the customer directory.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id string) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Customer], error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Customer]{}, fmt.Errorf("customers: list: %w", err)
	}
	return shared.NewPage(rows, total, filter.Limit, func(c Customer) shared.Cursor {
		return shared.Cursor{UpdatedAt: c.UpdatedAt, ID: c.ID}
	}), nil
}

// Create stores a customer.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Customer, error) {
	name := strings.TrimSpace(in.CompanyName)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: company name required", httpx.ErrValidation)
	}
	created, err := s.repo.Create(ctx, Customer{
		CompanyName:        name,
		Address:            strings.TrimSpace(in.Address),
		PhoneNumber:        strings.TrimSpace(in.PhoneNumber),
		RegistrationNumber: strings.TrimSpace(in.RegistrationNumber),
		PostCode:           strings.TrimSpace(in.PostCode),
		Email:              strings.TrimSpace(in.Email),
	})
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, actor, "customer:create", created.ID, map[string]any{"company_name": created.CompanyName})
	return created, nil
}

// Update patches a customer.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id string, in UpdateInput) (Customer, error) {
	updates := make(map[string]any)
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("company_name", in.CompanyName)
	set("address", in.Address)
	set("phone_number", in.PhoneNumber)
	set("registration_number", in.RegistrationNumber)
	set("post_code", in.PostCode)
	set("email", in.Email)
	if v, ok := updates["company_name"]; ok && v == "" {
		return Customer{}, fmt.Errorf("%w: company name required", httpx.ErrValidation)
	}
	updated, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		return Customer{}, err
	}
	if len(updates) > 0 {
		s.record(ctx, actor, "customer:update", id, updates)
	}
	return updated, nil
}

// Delete removes customers and reports how many went away.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, in DeleteInput) (int64, error) {
	n, err := s.repo.Delete(ctx, in.CustomerIDs)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no customers matched", httpx.ErrNotFound)
	}
	for _, id := range in.CustomerIDs {
		s.record(ctx, actor, "customer:delete", id, nil)
	}
	return n, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "customer", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("audit customer", slog.String("action", action), slog.Any("error", err))
	}
}
