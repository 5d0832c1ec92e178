package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/platform/export"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Part, error)
	Create(ctx context.Context, p Part) (Part, error)
	Update(ctx context.Context, id string, updates map[string]any) (Part, error)
	Delete(ctx context.Context, ids []string) ([]Part, error)
	BOMReferences(ctx context.Context, ids []string) (map[string][]string, error)
	List(ctx context.Context, filter ListFilter) ([]Part, int, error)
	ListSummaries(ctx context.Context) ([]PartSummary, error)
	Each(ctx context.Context, fn func(Part) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Send(ctx context.Context, ev notifications.Event) error
}

// Service coordinates inventory part operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds Service. audit and notifier may be nil.
func NewService(repo RepositoryPort, audit AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

// List returns a page of parts.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Part], error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Part]{}, err
	}
	return shared.NewPage(rows, total, filter.Limit, func(p Part) shared.Cursor {
		return shared.Cursor{UpdatedAt: p.UpdatedAt, ID: p.PartID}
	}), nil
}

// ListSummaries returns the light part list.
func (s *Service) ListSummaries(ctx context.Context) ([]PartSummary, error) {
	out, err := s.repo.ListSummaries(ctx)
	if out == nil && err == nil {
		out = []PartSummary{}
	}
	return out, err
}

// Get loads one part.
func (s *Service) Get(ctx context.Context, id string) (Part, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new part and notifies owners.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Part, error) {
	if in.Price.IsNegative() {
		return Part{}, fmt.Errorf("%w: price cannot be negative", httpx.ErrValidation)
	}
	part := Part{
		PartID:       strings.TrimSpace(in.PartID),
		Name:         strings.TrimSpace(in.Name),
		Price:        in.Price,
		Quantity:     *in.Quantity,
		Unit:         strings.TrimSpace(in.Unit),
		ReorderPoint: DefaultReorderPoint,
	}
	if in.ReorderPoint != nil {
		part.ReorderPoint = *in.ReorderPoint
	}
	created, err := s.repo.Create(ctx, part)
	if err != nil {
		return Part{}, err
	}
	s.record(ctx, actor, "inventory:create", created.PartID, map[string]any{"quantity": created.Quantity, "price": created.Price.StringFixed(2)})
	s.notify(ctx, notifications.Event{
		Type:    notifications.TypeInventoryCreate,
		Title:   fmt.Sprintf("New Part Created: %s", created.Name),
		Content: fmt.Sprintf("%s created part %s (%s) with %d %s at RM%s", actorName(actor), created.Name, created.PartID, created.Quantity, created.Unit, created.Price.StringFixed(2)),
		PartID:  created.PartID,
	})
	if created.Quantity <= created.ReorderPoint {
		s.notify(ctx, notifications.LowStockEvent(created.StockItem().Alert()))
	}
	return created, nil
}

// Update applies a partial edit, reporting what changed.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id string, in UpdateInput) (Part, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Part{}, err
	}
	updates := make(map[string]any)
	var changes []shared.Change
	if in.Name != nil && strings.TrimSpace(*in.Name) != existing.Name {
		name := strings.TrimSpace(*in.Name)
		updates["name"] = name
		changes = append(changes, shared.Change{Field: "name", Label: "Name", Old: existing.Name, New: name})
	}
	if in.Price != nil && !in.Price.Equal(existing.Price) {
		if in.Price.IsNegative() {
			return Part{}, fmt.Errorf("%w: price cannot be negative", httpx.ErrValidation)
		}
		updates["price"] = *in.Price
		changes = append(changes, shared.Change{Field: shared.FieldPrice, Label: "Price", Old: existing.Price.StringFixed(2), New: in.Price.StringFixed(2)})
	}
	if in.Quantity != nil && *in.Quantity != existing.Quantity {
		updates["quantity"] = *in.Quantity
		changes = append(changes, shared.Change{Field: shared.FieldQuantity, Label: "Quantity", Old: strconv.FormatInt(existing.Quantity, 10), New: strconv.FormatInt(*in.Quantity, 10)})
	}
	if in.Unit != nil && strings.TrimSpace(*in.Unit) != existing.Unit {
		unit := strings.TrimSpace(*in.Unit)
		updates["unit"] = unit
		changes = append(changes, shared.Change{Field: "unit", Label: "Unit of Measure", Old: existing.Unit, New: unit})
	}
	if in.ReorderPoint != nil && *in.ReorderPoint != existing.ReorderPoint {
		updates["reorder_point"] = *in.ReorderPoint
		changes = append(changes, shared.Change{Field: "reorder_point", Label: "Reorder Point", Old: strconv.FormatInt(existing.ReorderPoint, 10), New: strconv.FormatInt(*in.ReorderPoint, 10)})
	}
	if len(updates) == 0 {
		return existing, nil
	}
	updated, err := s.repo.Update(ctx, id, updates)
	if err != nil {
		return Part{}, err
	}
	meta := make(map[string]any, len(changes))
	for _, c := range changes {
		meta[c.Field] = map[string]string{"from": c.Old, "to": c.New}
	}
	s.record(ctx, actor, "inventory:update", id, meta)
	s.notify(ctx, notifications.Event{
		Type:    notifications.TypeInventoryUpdate,
		Title:   fmt.Sprintf("Part Updated: %s", updated.Name),
		Content: shared.SummarizeChanges("Part", updated.Name, changes),
		PartID:  updated.PartID,
		Rows:    changeRows(changes),
	})
	if fulfillment.ReorderCrossed(existing.StockItem(), updated.StockItem()) {
		s.notify(ctx, notifications.LowStockEvent(updated.StockItem().Alert()))
	}
	return updated, nil
}

// Delete removes parts. Parts still named in a product BOM block the whole request
// with a conflict unless in.Force is set.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, in DeleteInput) (DeleteResult, error) {
	ids := slices.Compact(slices.Sorted(slices.Values(in.PartIDs)))
	refs, err := s.repo.BOMReferences(ctx, ids)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(refs) > 0 && !in.Force {
		return DeleteResult{References: refs}, fmt.Errorf("%w: %s", httpx.ErrConflict, describeReferences(refs))
	}
	deleted, err := s.repo.Delete(ctx, ids)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(deleted) == 0 {
		return DeleteResult{}, fmt.Errorf("%w: no parts matched", httpx.ErrNotFound)
	}
	for _, p := range deleted {
		s.record(ctx, actor, "inventory:delete", p.PartID, map[string]any{"force": in.Force, "quantity": p.Quantity})
		s.notify(ctx, notifications.Event{
			Type:    notifications.TypeInventoryDelete,
			Title:   fmt.Sprintf("Part Deleted: %s", p.Name),
			Content: fmt.Sprintf("%s deleted part %s (%s)", actorName(actor), p.Name, p.PartID),
			PartID:  p.PartID,
		})
	}
	result := DeleteResult{Deleted: int64(len(deleted))}
	if len(refs) > 0 {
		result.References = refs
	}
	return result, nil
}

// Export writes every part as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	out := export.NewWriter(w)
	if err := out.Row("Part ID", "Part Name", "Quantity", "Unit of Measure", "Price", "Reorder Point", "Created At", "Last Updated"); err != nil {
		return err
	}
	err := s.repo.Each(ctx, func(p Part) error {
		return out.Row(
			p.PartID,
			p.Name,
			strconv.FormatInt(p.Quantity, 10),
			p.Unit,
			"RM "+p.Price.StringFixed(2),
			strconv.FormatInt(p.ReorderPoint, 10),
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.UpdatedAt.UTC().Format(time.RFC3339),
		)
	})
	if err != nil {
		return err
	}
	return out.Flush()
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "inventory_part", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("audit inventory", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, ev notifications.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("notify inventory change", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}

func actorName(p rbac.Principal) string {
	if p.Username != "" {
		return p.Username
	}
	return "A user"
}

func changeRows(changes []shared.Change) []notifications.Row {
	rows := make([]notifications.Row, len(changes))
	for i, c := range changes {
		rows[i] = notifications.Row{Label: c.Label, Value: fmt.Sprintf("%s to %s", c.Old, c.New)}
	}
	return rows
}

func describeReferences(refs map[string][]string) string {
	parts := make([]string, 0, len(refs))
	for _, id := range slices.Sorted(maps.Keys(refs)) {
		parts = append(parts, fmt.Sprintf("part %s is used by %s", id, strings.Join(refs[id], ", ")))
	}
	return strings.Join(parts, "; ")
}
