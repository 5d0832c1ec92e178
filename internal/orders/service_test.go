package orders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/inventra/inventra/internal/customers"
	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/products"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
	"github.com/inventra/inventra/internal/users"
)

const customerID = "7f1c2d7e-5b0e-4d3a-9a55-0c1e6b7d2f10"

// fakeDB keeps committed state and replays InTx against a staged copy.
type fakeDB struct {
	mu       sync.Mutex
	parts    map[string]fulfillment.StockItem
	products map[string]fulfillment.StockItem
	keys     map[string]bool
	orders   map[string]Order
	clock    time.Time
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		parts:    map[string]fulfillment.StockItem{},
		products: map[string]fulfillment.StockItem{},
		keys:     map[string]bool{},
		orders:   map[string]Order{},
		clock:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (d *fakeDB) addPart(id string, qty, reorder int64) {
	d.parts[id] = fulfillment.StockItem{Kind: fulfillment.KindPart, ID: id, Name: "part " + id, Quantity: qty, ReorderPoint: reorder}
}

func (d *fakeDB) addProduct(id string, qty, reorder int64) {
	d.products[id] = fulfillment.StockItem{Kind: fulfillment.KindProduct, ID: id, Name: "product " + id, Quantity: qty, ReorderPoint: reorder}
}

func (d *fakeDB) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &fakeTx{
		db:       d,
		parts:    maps.Clone(d.parts),
		products: maps.Clone(d.products),
		keys:     maps.Clone(d.keys),
		orders:   maps.Clone(d.orders),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	d.parts, d.products, d.keys, d.orders = tx.parts, tx.products, tx.keys, tx.orders
	return nil
}

type fakeTx struct {
	db       *fakeDB
	parts    map[string]fulfillment.StockItem
	products map[string]fulfillment.StockItem
	keys     map[string]bool
	orders   map[string]Order
}

func (t *fakeTx) Stock() fulfillment.StockStore { return t }

func (t *fakeTx) ClaimKey(_ context.Context, key string) error {
	if t.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	t.keys[key] = true
	return nil
}

func (t *fakeTx) Insert(_ context.Context, o Order) (Order, error) {
	t.db.clock = t.db.clock.Add(time.Minute)
	o.CreatedAt, o.UpdatedAt = t.db.clock, t.db.clock
	t.orders[o.ID] = o
	return o, nil
}

func (t *fakeTx) LockPart(_ context.Context, id string) (fulfillment.StockItem, error) {
	item, ok := t.parts[id]
	if !ok {
		return fulfillment.StockItem{}, fmt.Errorf("%w: part %s", httpx.ErrNotFound, id)
	}
	return item, nil
}

func (t *fakeTx) LockProduct(_ context.Context, id string) (fulfillment.StockItem, error) {
	item, ok := t.products[id]
	if !ok {
		return fulfillment.StockItem{}, fmt.Errorf("%w: product %s", httpx.ErrNotFound, id)
	}
	return item, nil
}

func (t *fakeTx) SetPartQuantity(_ context.Context, id string, qty int64) error {
	item := t.parts[id]
	item.Quantity = qty
	t.parts[id] = item
	return nil
}

func (t *fakeTx) SetProductQuantity(_ context.Context, id string, qty int64) error {
	item := t.products[id]
	item.Quantity = qty
	t.products[id] = item
	return nil
}

// Read side over the committed orders.
func (d *fakeDB) Get(_ context.Context, id string) (Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return Order{}, httpx.ErrNotFound
	}
	return o, nil
}

func (d *fakeDB) Delete(_ context.Context, ids []string) ([]Order, error) {
	var out []Order
	for _, id := range ids {
		if o, ok := d.orders[id]; ok {
			out = append(out, o)
			delete(d.orders, id)
		}
	}
	return out, nil
}

func (d *fakeDB) List(context.Context, ListFilter) ([]Order, int, error) {
	out := make([]Order, 0, len(d.orders))
	for _, o := range d.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (d *fakeDB) Each(_ context.Context, fn func(Order) error) error {
	for _, o := range d.orders {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

type catalog struct {
	products map[string]products.Product
	prices   map[string]decimal.Decimal
}

func (c catalog) GetMany(_ context.Context, ids []string) (map[string]products.Product, error) {
	out := map[string]products.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c catalog) Prices(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, id := range ids {
		if p, ok := c.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type directory struct{}

func (directory) Get(_ context.Context, id string) (users.User, error) {
	if id != "agent-1" {
		return users.User{}, httpx.ErrNotFound
	}
	return users.User{ID: "agent-1", FullName: "Siti Aminah", Role: rbac.RoleSales}, nil
}

type customerBook struct{}

func (customerBook) Get(_ context.Context, id string) (customers.Customer, error) {
	if id != customerID {
		return customers.Customer{}, fmt.Errorf("%w: customer %s", httpx.ErrNotFound, id)
	}
	return customers.Customer{ID: customerID, CompanyName: "Acme Sdn Bhd"}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Send(_ context.Context, ev notifications.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []notifications.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Type, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type recordingObserver struct {
	created  []string
	failed   []string
	lowStock map[string]int
}

func (o *recordingObserver) OrderCreated(t string) { o.created = append(o.created, t) }
func (o *recordingObserver) OrderFailed(r string)  { o.failed = append(o.failed, r) }
func (o *recordingObserver) LowStock(kind string, n int) {
	if o.lowStock == nil {
		o.lowStock = map[string]int{}
	}
	o.lowStock[kind] += n
}

type fixture struct {
	db       *fakeDB
	notifier *recordingNotifier
	observer *recordingObserver
	svc      *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := newFakeDB()
	db.addPart("p1", 20, 5)
	db.addPart("p2", 30, 5)
	db.addProduct("prod1", 10, 5)
	cat := catalog{
		products: map[string]products.Product{
			"prod1": {ProductID: "prod1", Name: "Widget", BasePrice: decimal.NewFromInt(100), BOM: []fulfillment.BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 3}}},
		},
		prices: map[string]decimal.Decimal{"p1": decimal.NewFromInt(5), "p2": decimal.NewFromInt(10)},
	}
	notifier := &recordingNotifier{}
	observer := &recordingObserver{}
	svc := NewService(Deps{
		Repo:      db,
		Tx:        db,
		Agents:    directory{},
		Customers: customerBook{},
		Products:  cat,
		Parts:     cat,
		Notifier:  notifier,
		Observer:  observer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return fixture{db: db, notifier: notifier, observer: observer, svc: svc}
}

var agent = rbac.Principal{UserID: "agent-1", Username: "siti", Role: rbac.RoleSales}

func TestSaleWithoutOverridePricesBaseAndParts(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), agent, CreateInput{
		Type:          "SALE",
		PaymentMethod: PaymentCash,
		Items: []fulfillment.OrderLine{
			{ProductID: "prod1", Quantity: 2},
			{PartID: "p1", Quantity: 1},
		},
	}, "")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(205).Equal(*res.TotalAmount))
	require.Equal(t, int64(8), f.db.products["prod1"].Quantity)
	require.Equal(t, int64(19), f.db.parts["p1"].Quantity)
	require.Equal(t, int64(30), f.db.parts["p2"].Quantity, "canonical BOM parts are not consumed")
	require.Equal(t, "Siti Aminah", res.Order.AgentName)
	require.Equal(t, PaymentCash, *res.Order.PaymentMethod)
	require.Empty(t, res.LowStock)
	require.Len(t, f.db.orders, 1)
	require.Equal(t, []string{"SALE"}, f.observer.created)

	require.Empty(t, f.notifier.events, "hooks only run when invoked")
	RunHooks(context.Background(), res.Hooks)
	require.Equal(t, []notifications.Type{notifications.TypeOrderSale}, f.notifier.types())
	require.Equal(t, res.Order.ID, f.notifier.events[0].OrderID)
}

func TestSaleWithOverrideAddsBOMDifference(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), agent, CreateInput{
		Type:       "SALE",
		CustomerID: customerID,
		Items: []fulfillment.OrderLine{
			{ProductID: "prod1", Quantity: 1, BOM: []fulfillment.BOMLine{{PartID: "p1", Quantity: 2}, {PartID: "p2", Quantity: 5}}},
		},
	}, "")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(120).Equal(*res.TotalAmount))
	require.Equal(t, "Acme Sdn Bhd", *res.Order.CustomerName)
	require.Nil(t, res.Order.PaymentMethod)
	require.Equal(t, int64(18), f.db.parts["p1"].Quantity)
	require.Equal(t, int64(25), f.db.parts["p2"].Quantity)
	require.Equal(t, int64(9), f.db.products["prod1"].Quantity)
	require.Len(t, res.UpdatedParts, 2)
	require.Len(t, res.UpdatedProducts, 1)
}

func TestInsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.db.addPart("p3", 4, 1)
	_, err := f.svc.Create(context.Background(), agent, CreateInput{
		Type:          "SALE",
		PaymentMethod: PaymentCard,
		Items: []fulfillment.OrderLine{
			{PartID: "p1", Quantity: 1},
			{PartID: "p3", Quantity: 10},
		},
	}, "")
	var insufficient *fulfillment.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "p3", insufficient.ID)
	require.Equal(t, int64(4), insufficient.Available)
	require.Equal(t, int64(10), insufficient.Requested)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)
	require.Equal(t, int64(20), f.db.parts["p1"].Quantity)
	require.Equal(t, int64(4), f.db.parts["p3"].Quantity)
	require.Empty(t, f.db.orders)
	require.Equal(t, []string{"insufficient_stock"}, f.observer.failed)
}

func TestStockOrderRaisesLowStockHooks(t *testing.T) {
	f := newFixture(t)
	f.db.addPart("p4", 5, 10)
	res, err := f.svc.Create(context.Background(), agent, CreateInput{
		Type:  "STOCK",
		Items: []fulfillment.OrderLine{{PartID: "p4", Quantity: 3}},
	}, "")
	require.NoError(t, err)
	require.Nil(t, res.TotalAmount)
	require.Equal(t, int64(8), f.db.parts["p4"].Quantity)
	require.Equal(t, []fulfillment.LowStockAlert{{Kind: fulfillment.KindPart, ID: "p4", Name: "part p4", Quantity: 8, ReorderPoint: 10}}, res.LowStock)
	require.Equal(t, map[string]int{"part": 1}, f.observer.lowStock)

	RunHooks(context.Background(), res.Hooks)
	require.Equal(t, []notifications.Type{notifications.TypeOrderStock, notifications.TypeLowStock}, f.notifier.types())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]CreateInput{
		"unknown type":      {Type: "GIFT", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 1}}},
		"no items":          {Type: "STOCK"},
		"sale without pay":  {Type: "SALE", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 1}}},
		"sale with both":    {Type: "SALE", PaymentMethod: PaymentCash, CustomerID: customerID, Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 1}}},
		"zero quantity":     {Type: "STOCK", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 0}}},
		"both ids":          {Type: "STOCK", Items: []fulfillment.OrderLine{{PartID: "p1", ProductID: "prod1", Quantity: 1}}},
		"bad payment value": {Type: "SALE", PaymentMethod: "BARTER", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 1}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), agent, in, "")
			require.ErrorIs(t, err, httpx.ErrValidation)
		})
	}
	require.Empty(t, f.db.orders)
}

func TestCreateResolutionFailures(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), rbac.Principal{UserID: "ghost"}, CreateInput{
		Type: "STOCK", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 1}},
	}, "")
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = f.svc.Create(context.Background(), agent, CreateInput{
		Type: "SALE", PaymentMethod: PaymentCash, Items: []fulfillment.OrderLine{{ProductID: "nope", Quantity: 1}},
	}, "")
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.Equal(t, []string{"not_found", "not_found"}, f.observer.failed)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	f := newFixture(t)
	in := CreateInput{Type: "STOCK", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 5}}}
	_, err := f.svc.Create(context.Background(), agent, in, "req-1")
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), agent, in, "req-1")
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Equal(t, int64(25), f.db.parts["p1"].Quantity)
	require.Len(t, f.db.orders, 1)
}

func TestDeleteKeepsStockAndNotifies(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), agent, CreateInput{Type: "STOCK", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 5}}}, "")
	require.NoError(t, err)

	out, err := f.svc.Delete(context.Background(), agent, DeleteInput{OrderIDs: []string{res.Order.ID}})
	require.NoError(t, err)
	require.Equal(t, int64(1), out.Deleted)
	require.Equal(t, int64(25), f.db.parts["p1"].Quantity)

	RunHooks(context.Background(), out.Hooks)
	require.Equal(t, []notifications.Type{notifications.TypeOrderDelete}, f.notifier.types())

	_, err = f.svc.Delete(context.Background(), agent, DeleteInput{OrderIDs: []string{res.Order.ID}})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestExportWritesOrders(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), agent, CreateInput{
		Type: "SALE", CustomerID: customerID, Notes: "rush", Items: []fulfillment.OrderLine{{ProductID: "prod1", Quantity: 1}},
	}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(context.Background(), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "Order ID,Order Type,Customer"))
	require.Contains(t, lines[1], ",SALE,Acme Sdn Bhd,,RM 100.00,Siti Aminah,prod1 (1),rush,")
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, notifications.Event) error {
	return errors.New("smtp down")
}

func TestHandlerCreatesAndDispatchesHooks(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, rbac.Middleware{})
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := rbac.Role(r.Header.Get("X-Role"))
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), rbac.Principal{UserID: "agent-1", Role: role})))
		})
	})
	h.MountRoutes(router)

	body := `{"orderType":"SALE","paymentMethod":"CASH","orderItems":[{"productId":"prod1","quantity":2},{"partId":"p1","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-Role", "STORE")
	req.Header.Set(IdempotencyHeader, "k-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"totalAmount":"205"`)
	h.Wait()
	require.Equal(t, []notifications.Type{notifications.TypeOrderSale}, f.notifier.types())

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("X-Role", "STORE")
	req.Header.Set(IdempotencyHeader, "k-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"orderType":"SALE","orderItems":[]}`))
	req.Header.Set("X-Role", "STORE")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/export", nil)
	req.Header.Set("X-Role", "SALES")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestNotificationFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	f.svc.Notifier = failingNotifier{}
	res, err := f.svc.Create(context.Background(), agent, CreateInput{Type: "STOCK", Items: []fulfillment.OrderLine{{PartID: "p1", Quantity: 1}}}, "")
	require.NoError(t, err)
	require.NotPanics(t, func() { RunHooks(context.Background(), res.Hooks) })
	require.Len(t, f.db.orders, 1)
}
