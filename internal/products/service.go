package products

import (
	"context"
	"fmt"
	"io"
	"log/slog"
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

// RepositoryPort abstracts product persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id string, updates map[string]any) (Product, error)
	Delete(ctx context.Context, ids []string) ([]Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	All(ctx context.Context) ([]Product, error)
	PartNames(ctx context.Context, ids []string) (map[string]string, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Send(ctx context.Context, ev notifications.Event) error
}

// ListCache memoises the full product list between writes.
type ListCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// Service coordinates product catalogue operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier Notifier
	cache    ListCache
	logger   *slog.Logger
}

// NewService builds Service. audit, notifier and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, notifier Notifier, cache ListCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, cache: cache, logger: logger}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Product], error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Product]{}, err
	}
	return shared.NewPage(rows, total, filter.Limit, func(p Product) shared.Cursor {
		return shared.Cursor{UpdatedAt: p.UpdatedAt, ID: p.ProductID}
	}), nil
}

// ListSummaries returns the light product list, served from cache when possible.
func (s *Service) ListSummaries(ctx context.Context) ([]Summary, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(all))
	for i, p := range all {
		out[i] = Summary{ProductID: p.ProductID, Name: p.Name, BasePrice: p.BasePrice, Quantity: p.Quantity, BOM: p.BOM}
	}
	slices.SortFunc(out, func(a, b Summary) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Get loads one product.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a product after checking every BOM part exists.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Product, error) {
	if in.BasePrice.IsNegative() {
		return Product{}, fmt.Errorf("%w: base price cannot be negative", httpx.ErrValidation)
	}
	names, err := s.checkParts(ctx, in.BOM)
	if err != nil {
		return Product{}, err
	}
	product := Product{
		ProductID:    strings.TrimSpace(in.ProductID),
		Name:         strings.TrimSpace(in.Name),
		BasePrice:    in.BasePrice,
		Quantity:     *in.Quantity,
		BOM:          in.BOM,
		ReorderPoint: DefaultReorderPoint,
	}
	if in.ReorderPoint != nil {
		product.ReorderPoint = *in.ReorderPoint
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, "product:create", created.ProductID, map[string]any{"quantity": created.Quantity, "bom_parts": len(created.BOM)})

	rows := []notifications.Row{
		{Label: "Product ID", Value: created.ProductID},
		{Label: "Base price", Value: "RM" + created.BasePrice.StringFixed(2)},
		{Label: "Quantity", Value: strconv.FormatInt(created.Quantity, 10)},
	}
	for _, line := range created.BOM {
		rows = append(rows, notifications.Row{Label: "Part " + line.PartID, Value: fmt.Sprintf("%s x%d", names[line.PartID], line.Quantity)})
	}
	s.notify(ctx, notifications.Event{
		Type:      notifications.TypeProductCreate,
		Title:     fmt.Sprintf("New Product Created: %s", created.Name),
		Content:   fmt.Sprintf("%s created product %s (%s) with %d components", actorName(actor), created.Name, created.ProductID, len(created.BOM)),
		ProductID: created.ProductID,
		Rows:      rows,
	})
	if created.Quantity <= created.ReorderPoint {
		s.notify(ctx, notifications.LowStockEvent(created.StockItem().Alert()))
	}
	return created, nil
}

// Update applies a partial edit, summarising what changed.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id string, in UpdateInput) (Product, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	updates := make(map[string]any)
	var changes []shared.Change
	var bomChange BOMChange
	if in.Name != nil && strings.TrimSpace(*in.Name) != existing.Name {
		name := strings.TrimSpace(*in.Name)
		updates["name"] = name
		changes = append(changes, shared.Change{Field: "name", Label: "Product Name", Old: existing.Name, New: name})
	}
	if in.BasePrice != nil && !in.BasePrice.Equal(existing.BasePrice) {
		if in.BasePrice.IsNegative() {
			return Product{}, fmt.Errorf("%w: base price cannot be negative", httpx.ErrValidation)
		}
		updates["base_price"] = *in.BasePrice
		changes = append(changes, shared.Change{Field: shared.FieldPrice, Label: "Base Price", Old: existing.BasePrice.StringFixed(2), New: in.BasePrice.StringFixed(2)})
	}
	if in.Quantity != nil && *in.Quantity != existing.Quantity {
		updates["quantity"] = *in.Quantity
		changes = append(changes, shared.Change{Field: shared.FieldQuantity, Label: "Quantity", Old: strconv.FormatInt(existing.Quantity, 10), New: strconv.FormatInt(*in.Quantity, 10)})
	}
	if in.BOM != nil {
		bom := *in.BOM
		if bom == nil {
			bom = []fulfillment.BOMLine{}
		}
		bomChange = CompareBOM(existing.BOM, bom)
		if !bomChange.Empty() || len(bom) != len(existing.BOM) {
			if _, err := s.checkParts(ctx, bom); err != nil {
				return Product{}, err
			}
			updates["bom"] = bom
			changes = append(changes, shared.Change{
				Field: "bom",
				Label: "Bill of Materials",
				Old:   fmt.Sprintf("%d components", len(existing.BOM)),
				New:   fmt.Sprintf("%d components", len(bom)),
			})
		}
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
		return Product{}, err
	}
	s.invalidate(ctx)
	meta := make(map[string]any, len(changes)+1)
	for _, c := range changes {
		meta[c.Field] = map[string]string{"from": c.Old, "to": c.New}
	}
	if !bomChange.Empty() {
		meta["bom_change"] = bomChange
	}
	s.record(ctx, actor, "product:update", id, meta)

	s.notify(ctx, notifications.Event{
		Type:      notifications.TypeProductUpdate,
		Title:     fmt.Sprintf("Product Updated: %s", updated.Name),
		Content:   shared.SummarizeChanges("Product", updated.Name, changes),
		ProductID: updated.ProductID,
		Rows:      append(changeRows(changes), bomRows(bomChange)...),
	})
	if fulfillment.ReorderCrossed(existing.StockItem(), updated.StockItem()) {
		s.notify(ctx, notifications.LowStockEvent(updated.StockItem().Alert()))
	}
	return updated, nil
}

// Delete removes products. Past orders keep their stored lines.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, in DeleteInput) (int64, error) {
	ids := slices.Compact(slices.Sorted(slices.Values(in.ProductIDs)))
	deleted, err := s.repo.Delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(deleted) == 0 {
		return 0, fmt.Errorf("%w: no products matched", httpx.ErrNotFound)
	}
	s.invalidate(ctx)
	for _, p := range deleted {
		s.record(ctx, actor, "product:delete", p.ProductID, map[string]any{"quantity": p.Quantity})
		s.notify(ctx, notifications.Event{
			Type:      notifications.TypeProductDelete,
			Title:     fmt.Sprintf("Product Deleted: %s", p.Name),
			Content:   fmt.Sprintf("%s deleted product %s (%s)", actorName(actor), p.Name, p.ProductID),
			ProductID: p.ProductID,
		})
	}
	return int64(len(deleted)), nil
}

// Export writes every product as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	all, err := s.all(ctx)
	if err != nil {
		return err
	}
	var ids []string
	for _, p := range all {
		for _, l := range p.BOM {
			ids = append(ids, l.PartID)
		}
	}
	names, err := s.repo.PartNames(ctx, slices.Compact(slices.Sorted(slices.Values(ids))))
	if err != nil {
		return err
	}
	out := export.NewWriter(w)
	if err := out.Row("Product ID", "Product Name", "Quantity", "Base Price", "Created At", "Last Updated", "BOM Count", "BOM Items", "Reorder Point"); err != nil {
		return err
	}
	for _, p := range all {
		items := "None"
		if len(p.BOM) > 0 {
			parts := make([]string, len(p.BOM))
			for i, l := range p.BOM {
				name, ok := names[l.PartID]
				if !ok {
					name = l.PartID
				}
				parts[i] = fmt.Sprintf("%s (%d)", name, l.Quantity)
			}
			items = strings.Join(parts, "; ")
		}
		if err := out.Row(
			p.ProductID,
			p.Name,
			strconv.FormatInt(p.Quantity, 10),
			"RM "+p.BasePrice.StringFixed(2),
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.UpdatedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(len(p.BOM)),
			items,
			strconv.FormatInt(p.ReorderPoint, 10),
		); err != nil {
			return err
		}
	}
	return out.Flush()
}

func (s *Service) all(ctx context.Context) ([]Product, error) {
	if s.cache == nil {
		return s.repo.All(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "export")
	if err != nil {
		s.logger.Warn("product cache key", slog.Any("error", err))
		return s.repo.All(ctx)
	}
	var out []Product
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.All(ctx)
	})
	return out, err
}

// checkParts verifies every BOM line is well formed and names an existing part.
func (s *Service) checkParts(ctx context.Context, bom []fulfillment.BOMLine) (map[string]string, error) {
	ids := make([]string, 0, len(bom))
	seen := make(map[string]struct{}, len(bom))
	for _, l := range bom {
		if l.PartID == "" || l.Quantity <= 0 || l.Quantity > fulfillment.MaxQuantity {
			return nil, fmt.Errorf("%w: bom lines need a partId and a quantity between 1 and %d", httpx.ErrValidation, fulfillment.MaxQuantity)
		}
		if _, dup := seen[l.PartID]; dup {
			return nil, fmt.Errorf("%w: bom lists part %s more than once", httpx.ErrValidation, l.PartID)
		}
		seen[l.PartID] = struct{}{}
		ids = append(ids, l.PartID)
	}
	slices.Sort(ids)
	names, err := s.repo.PartNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			missing = append(missing, id)
		}
	}
	switch len(missing) {
	case 0:
		return names, nil
	case 1:
		return nil, fmt.Errorf("%w: %s does not exist", httpx.ErrValidation, missing[0])
	default:
		return nil, fmt.Errorf("%w: %s do not exist", httpx.ErrValidation, strings.Join(missing, ", "))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate product cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "product", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("audit product", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, ev notifications.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("notify product change", slog.String("type", string(ev.Type)), slog.Any("error", err))
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

func bomRows(c BOMChange) []notifications.Row {
	var rows []notifications.Row
	for _, l := range c.Added {
		rows = append(rows, notifications.Row{Label: "Added part " + l.PartID, Value: fmt.Sprintf("x%d", l.Quantity)})
	}
	for _, l := range c.Removed {
		rows = append(rows, notifications.Row{Label: "Removed part " + l.PartID, Value: fmt.Sprintf("x%d", l.Quantity)})
	}
	for _, m := range c.Modified {
		rows = append(rows, notifications.Row{Label: "Changed part " + m.PartID, Value: fmt.Sprintf("x%d to x%d", m.OldQuantity, m.NewQuantity)})
	}
	return rows
}
