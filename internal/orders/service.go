package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/inventra/inventra/internal/customers"
	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/platform/export"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/products"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
	"github.com/inventra/inventra/internal/users"
)

// RepositoryPort is the read and delete side of order persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (Order, error)
	Delete(ctx context.Context, ids []string) ([]Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	Each(ctx context.Context, fn func(Order) error) error
}

// TxStore is what order creation may touch inside its transaction.
type TxStore interface {
	Stock() fulfillment.StockStore
	ClaimKey(ctx context.Context, key string) error
	Insert(ctx context.Context, o Order) (Order, error)
}

// Transactor runs fn atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// Agents resolves the user creating an order.
type Agents interface {
	Get(ctx context.Context, id string) (users.User, error)
}

// Customers resolves the customer on a sale.
type Customers interface {
	Get(ctx context.Context, id string) (customers.Customer, error)
}

// Products resolves products for pricing.
type Products interface {
	GetMany(ctx context.Context, ids []string) (map[string]products.Product, error)
}

// PartPrices resolves unit prices of inventory parts.
type PartPrices interface {
	Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Send(ctx context.Context, ev notifications.Event) error
}

// Observer receives order outcome counters.
type Observer interface {
	OrderCreated(orderType string)
	OrderFailed(reason string)
	LowStock(kind string, n int)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo      RepositoryPort
	Tx        Transactor
	Agents    Agents
	Customers Customers
	Products  Products
	Parts     PartPrices
	Notifier  Notifier
	Observer  Observer
	Audit     AuditPort
	Pricer    fulfillment.Pricer
	Logger    *slog.Logger
}

// Service orchestrates order creation and order bookkeeping.
type Service struct {
	Deps
	now func() time.Time
}

// NewService builds Service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, now: time.Now}
}

// Create validates, prices and commits an order together with its stock adjustment.
// A non-empty idempotencyKey is claimed in the same transaction; a repeat yields
// httpx.ErrConflict. Notification work is returned in Result.Hooks.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput, idempotencyKey string) (Result, error) {
	res, err := s.create(ctx, actor, in, idempotencyKey)
	if err != nil {
		s.observeFailure(err)
		return Result{}, err
	}
	if s.Observer != nil {
		s.Observer.OrderCreated(string(res.Order.Type))
		counts := map[fulfillment.EntityKind]int{}
		for _, a := range res.LowStock {
			counts[a.Kind]++
		}
		for kind, n := range counts {
			s.Observer.LowStock(string(kind), n)
		}
	}
	return res, nil
}

func (s *Service) create(ctx context.Context, actor rbac.Principal, in CreateInput, idempotencyKey string) (Result, error) {
	typ, err := validate(in)
	if err != nil {
		return Result{}, err
	}
	deltas, err := fulfillment.Aggregate(in.Items)
	if err != nil {
		return Result{}, err
	}

	order := Order{
		ID:    uuid.NewString(),
		Type:  typ,
		Items: in.Items,
		Notes: strings.TrimSpace(in.Notes),
	}

	var (
		agent    users.User
		customer customers.Customer
		catalog  fulfillment.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agent, err = s.Agents.Get(gctx, actor.UserID)
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("%w: sales agent %s", httpx.ErrNotFound, actor.UserID)
		}
		return err
	})
	if typ == TypeSale && in.CustomerID != "" {
		g.Go(func() error {
			var err error
			customer, err = s.Customers.Get(gctx, in.CustomerID)
			return err
		})
	}
	if typ == TypeSale {
		g.Go(func() error {
			var err error
			catalog, err = s.resolveCatalog(gctx, in.Items, deltas)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	order.AgentID = agent.ID
	order.AgentName = agent.FullName

	if typ == TypeSale {
		total, err := s.Pricer.Total(in.Items, catalog)
		if err != nil {
			return Result{}, err
		}
		order.TotalAmount = &total
		if in.CustomerID != "" {
			order.CustomerID = &customer.ID
			order.CustomerName = &customer.CompanyName
		}
		if in.PaymentMethod != "" {
			method := in.PaymentMethod
			order.PaymentMethod = &method
		}
	}

	var adj fulfillment.Adjustment
	var saved Order
	err = s.Tx.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		if idempotencyKey != "" {
			if err := tx.ClaimKey(ctx, idempotencyKey); err != nil {
				return err
			}
		}
		var err error
		adj, err = fulfillment.ApplyDeltas(ctx, tx.Stock(), deltas, typ.Direction())
		if err != nil {
			return err
		}
		saved, err = tx.Insert(ctx, order)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.record(ctx, actor, "order:create", saved.ID, map[string]any{"type": string(saved.Type), "lines": len(saved.Items)})
	return Result{
		Order:           saved,
		TotalAmount:     saved.TotalAmount,
		UpdatedParts:    nonNil(adj.Parts),
		UpdatedProducts: nonNil(adj.Products),
		LowStock:        adj.LowStock,
		Hooks:           s.createdHooks(saved, adj.LowStock),
	}, nil
}

func validate(in CreateInput) (Type, error) {
	typ := Type(strings.ToUpper(strings.TrimSpace(in.Type)))
	if typ != TypeSale && typ != TypeStock {
		return "", fmt.Errorf("%w: orderType must be SALE or STOCK", httpx.ErrValidation)
	}
	if len(in.Items) == 0 {
		return "", fmt.Errorf("%w: at least one order item is required", httpx.ErrValidation)
	}
	if typ == TypeSale && (in.PaymentMethod == "") == (in.CustomerID == "") {
		return "", fmt.Errorf("%w: a sale needs exactly one of paymentMethod or customerId", httpx.ErrValidation)
	}
	switch in.PaymentMethod {
	case "", PaymentCash, PaymentCard, PaymentTransfer, PaymentCredit:
	default:
		return "", fmt.Errorf("%w: unknown payment method %q", httpx.ErrValidation, in.PaymentMethod)
	}
	return typ, nil
}

// resolveCatalog loads the products on the order, then the prices of every part the
// pricer will look at.
func (s *Service) resolveCatalog(ctx context.Context, lines []fulfillment.OrderLine, deltas fulfillment.Deltas) (fulfillment.Catalog, error) {
	ids := make([]string, 0, len(deltas.Products))
	for id := range deltas.Products {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	found, err := s.Products.GetMany(ctx, ids)
	if err != nil {
		return fulfillment.Catalog{}, err
	}
	cat := fulfillment.Catalog{Products: make(map[string]fulfillment.ProductPrice, len(found))}
	for id, p := range found {
		cat.Products[id] = p.Pricing()
	}
	cat.Parts, err = s.Parts.Prices(ctx, fulfillment.PricedPartIDs(lines, cat.Products))
	if err != nil {
		return fulfillment.Catalog{}, err
	}
	return cat, nil
}

func (s *Service) createdHooks(o Order, alerts []fulfillment.LowStockAlert) []Hook {
	if s.Notifier == nil {
		return nil
	}
	hooks := []Hook{func(ctx context.Context) { s.notify(ctx, orderCreatedEvent(o)) }}
	for _, alert := range alerts {
		hooks = append(hooks, func(ctx context.Context) { s.notify(ctx, notifications.LowStockEvent(alert)) })
	}
	return hooks
}

func orderCreatedEvent(o Order) notifications.Event {
	ev := notifications.Event{OrderID: o.ID, Rows: itemRows(o.Items)}
	if o.Type == TypeSale {
		ev.Type = notifications.TypeOrderSale
		ev.Title = "New Sale Order"
		who := "a walk-in customer"
		if o.CustomerName != nil {
			who = *o.CustomerName
		}
		ev.Content = fmt.Sprintf("%s recorded a sale to %s totalling RM%s", o.AgentName, who, o.TotalAmount.StringFixed(2))
		return ev
	}
	ev.Type = notifications.TypeOrderStock
	ev.Title = "New Stock Order"
	ev.Content = fmt.Sprintf("%s received stock across %d order lines", o.AgentName, len(o.Items))
	return ev
}

func itemRows(lines []fulfillment.OrderLine) []notifications.Row {
	rows := make([]notifications.Row, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, notifications.Row{Label: lineID(l), Value: fmt.Sprintf("x%d", l.Quantity)})
	}
	return rows
}

func lineID(l fulfillment.OrderLine) string {
	if l.PartID != "" {
		return "Part " + l.PartID
	}
	return "Product " + l.ProductID
}

// RunHooks executes post-commit hooks detached from the request's cancellation.
func RunHooks(ctx context.Context, hooks []Hook) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range hooks {
		h(ctx)
	}
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.Repo.Get(ctx, id)
}

// List returns a page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Order], error) {
	rows, total, err := s.Repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Order]{}, fmt.Errorf("orders: list: %w", err)
	}
	return shared.NewPage(rows, total, filter.Limit, func(o Order) shared.Cursor {
		return shared.Cursor{UpdatedAt: o.UpdatedAt, ID: o.ID}
	}), nil
}

// Delete removes orders without reversing their stock movements.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, in DeleteInput) (DeleteResult, error) {
	deleted, err := s.Repo.Delete(ctx, in.OrderIDs)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(deleted) == 0 {
		return DeleteResult{}, fmt.Errorf("%w: no orders matched", httpx.ErrNotFound)
	}
	result := DeleteResult{Deleted: int64(len(deleted))}
	for _, o := range deleted {
		s.record(ctx, actor, "order:delete", o.ID, map[string]any{"type": string(o.Type)})
		if s.Notifier == nil {
			continue
		}
		ev := notifications.Event{
			Type:    notifications.TypeOrderDelete,
			Title:   "Order Deleted",
			Content: fmt.Sprintf("%s deleted %s order %s", actorName(actor), strings.ToLower(string(o.Type)), o.ID),
			OrderID: o.ID,
		}
		result.Hooks = append(result.Hooks, func(ctx context.Context) { s.notify(ctx, ev) })
	}
	return result, nil
}

// Export writes every order as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	out := export.NewWriter(w)
	if err := out.Row("Order ID", "Order Type", "Customer", "Payment Method", "Total Amount", "Sales Agent", "Items", "Notes", "Created At"); err != nil {
		return err
	}
	err := s.Repo.Each(ctx, func(o Order) error {
		items := make([]string, len(o.Items))
		for i, l := range o.Items {
			id := l.PartID
			if id == "" {
				id = l.ProductID
			}
			items[i] = fmt.Sprintf("%s (%d)", id, l.Quantity)
		}
		total := ""
		if o.TotalAmount != nil {
			total = "RM " + o.TotalAmount.StringFixed(2)
		}
		return out.Row(
			o.ID,
			string(o.Type),
			deref(o.CustomerName),
			deref(o.PaymentMethod),
			total,
			o.AgentName,
			strings.Join(items, "; "),
			o.Notes,
			o.CreatedAt.UTC().Format(time.RFC3339),
		)
	})
	if err != nil {
		return err
	}
	return out.Flush()
}

func (s *Service) observeFailure(err error) {
	if s.Observer == nil {
		return
	}
	reason := "internal"
	switch {
	case errors.Is(err, httpx.ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, httpx.ErrValidation):
		reason = "validation"
	case errors.Is(err, httpx.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, httpx.ErrConflict):
		reason = "conflict"
	}
	s.Observer.OrderFailed(reason)
}

func (s *Service) notify(ctx context.Context, ev notifications.Event) {
	if err := s.Notifier.Send(ctx, ev); err != nil {
		s.Logger.Warn("order notification failed", slog.String("type", string(ev.Type)), slog.String("order_id", ev.OrderID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action, id string, meta map[string]any) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, Action: action, Entity: "order", EntityID: id, Meta: meta, At: s.now()}); err != nil {
		s.Logger.Warn("audit order", slog.String("action", action), slog.Any("error", err))
	}
}

func actorName(p rbac.Principal) string {
	if p.Username != "" {
		return p.Username
	}
	return "A user"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(items []fulfillment.StockItem) []fulfillment.StockItem {
	if items == nil {
		return []fulfillment.StockItem{}
	}
	return items
}
