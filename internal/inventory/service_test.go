package inventory

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

type memoryRepo struct {
	parts map[string]Part
	boms  map[string][]string // product id -> part ids
	clock time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parts: make(map[string]Part), boms: make(map[string][]string), clock: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memoryRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Minute)
	return r.clock
}

func (r *memoryRepo) Get(_ context.Context, id string) (Part, error) {
	p, ok := r.parts[id]
	if !ok {
		return Part{}, httpx.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) Create(_ context.Context, p Part) (Part, error) {
	if _, ok := r.parts[p.PartID]; ok {
		return Part{}, httpx.ErrDuplicate
	}
	p.CreatedAt = r.tick()
	p.UpdatedAt = p.CreatedAt
	r.parts[p.PartID] = p
	return p, nil
}

func (r *memoryRepo) Update(_ context.Context, id string, updates map[string]any) (Part, error) {
	p, ok := r.parts[id]
	if !ok {
		return Part{}, httpx.ErrNotFound
	}
	for col, v := range updates {
		switch col {
		case "name":
			p.Name = v.(string)
		case "price":
			p.Price = v.(decimal.Decimal)
		case "quantity":
			p.Quantity = v.(int64)
		case "unit":
			p.Unit = v.(string)
		case "reorder_point":
			p.ReorderPoint = v.(int64)
		}
	}
	p.UpdatedAt = r.tick()
	r.parts[id] = p
	return p, nil
}

func (r *memoryRepo) Delete(_ context.Context, ids []string) ([]Part, error) {
	var out []Part
	for _, id := range ids {
		if p, ok := r.parts[id]; ok {
			out = append(out, p)
			delete(r.parts, id)
		}
	}
	return out, nil
}

func (r *memoryRepo) BOMReferences(_ context.Context, ids []string) (map[string][]string, error) {
	refs := make(map[string][]string)
	for product, parts := range r.boms {
		for _, id := range ids {
			if slices.Contains(parts, id) {
				refs[id] = append(refs[id], product)
			}
		}
	}
	return refs, nil
}

func (r *memoryRepo) sorted() []Part {
	out := make([]Part, 0, len(r.parts))
	for _, p := range r.parts {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Part) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Part, int, error) {
	all := r.sorted()
	if len(all) > filter.Limit+1 {
		return all[:filter.Limit+1], len(r.parts), nil
	}
	return all, len(r.parts), nil
}

func (r *memoryRepo) ListSummaries(context.Context) ([]PartSummary, error) {
	var out []PartSummary
	for _, p := range r.sorted() {
		out = append(out, PartSummary{PartID: p.PartID, Name: p.Name, Price: p.Price, Quantity: p.Quantity, Unit: p.Unit})
	}
	return out, nil
}

func (r *memoryRepo) Each(_ context.Context, fn func(Part) error) error {
	for _, p := range r.sorted() {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

type recordingNotifier struct {
	events []notifications.Event
}

func (n *recordingNotifier) Send(_ context.Context, ev notifications.Event) error {
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []notifications.Type {
	out := make([]notifications.Type, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

var owner = rbac.Principal{UserID: "u-1", Username: "oli", Role: rbac.RoleOwner}

func TestCreateAppliesDefaultsAndNotifies(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	audit := &recordingAudit{}
	svc := NewService(repo, audit, notifier, discardLogger())

	part, err := svc.Create(context.Background(), owner, CreateInput{
		PartID: " P-1 ", Name: "Bolt", Price: decimal.RequireFromString("1.50"), Quantity: ptr[int64](100), Unit: "pcs",
	})
	require.NoError(t, err)
	require.Equal(t, "P-1", part.PartID)
	require.Equal(t, DefaultReorderPoint, part.ReorderPoint)
	require.Equal(t, []notifications.Type{notifications.TypeInventoryCreate}, notifier.types())
	require.Len(t, audit.logs, 1)
	require.Equal(t, "inventory:create", audit.logs[0].Action)

	_, err = svc.Create(context.Background(), owner, CreateInput{
		PartID: "P-2", Name: "Nut", Price: decimal.NewFromInt(1), Quantity: ptr[int64](10), Unit: "pcs",
	})
	require.NoError(t, err)
	require.Equal(t, notifications.TypeLowStock, notifier.events[2].Type)
	require.Equal(t, "P-2", notifier.events[2].PartID)
}

func TestCreateRejectsNegativePrice(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, discardLogger())
	_, err := svc.Create(context.Background(), owner, CreateInput{PartID: "P", Name: "x", Price: decimal.NewFromInt(-1), Quantity: ptr[int64](1), Unit: "pcs"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateSummarisesChangesAndDetectsCrossing(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, notifier, discardLogger())
	_, err := svc.Create(context.Background(), owner, CreateInput{PartID: "P-1", Name: "Bolt", Price: decimal.NewFromInt(2), Quantity: ptr[int64](60), Unit: "pcs"})
	require.NoError(t, err)
	notifier.events = nil

	updated, err := svc.Update(context.Background(), owner, "P-1", UpdateInput{Quantity: ptr[int64](45)})
	require.NoError(t, err)
	require.Equal(t, int64(45), updated.Quantity)
	require.Equal(t, []notifications.Type{notifications.TypeInventoryUpdate, notifications.TypeLowStock}, notifier.types())
	require.Equal(t, "Bolt's quantity decreased by 15 units (from 60 to 45)", notifier.events[0].Content)

	notifier.events = nil
	_, err = svc.Update(context.Background(), owner, "P-1", UpdateInput{Quantity: ptr[int64](40)})
	require.NoError(t, err)
	require.Equal(t, []notifications.Type{notifications.TypeInventoryUpdate}, notifier.types(), "already below reorder point")

	notifier.events = nil
	same, err := svc.Update(context.Background(), owner, "P-1", UpdateInput{Name: ptr("Bolt")})
	require.NoError(t, err)
	require.Equal(t, "Bolt", same.Name)
	require.Empty(t, notifier.events, "no-op edits are silent")
}

func TestDeleteBlockedByBOMUnlessForced(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, notifier, discardLogger())
	for _, id := range []string{"P-1", "P-2"} {
		_, err := svc.Create(context.Background(), owner, CreateInput{PartID: id, Name: id, Price: decimal.NewFromInt(1), Quantity: ptr[int64](100), Unit: "pcs"})
		require.NoError(t, err)
	}
	repo.boms["X-1"] = []string{"P-1"}
	notifier.events = nil

	result, err := svc.Delete(context.Background(), owner, DeleteInput{PartIDs: []string{"P-1", "P-2"}})
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Equal(t, []string{"X-1"}, result.References["P-1"])
	require.Len(t, repo.parts, 2)

	result, err = svc.Delete(context.Background(), owner, DeleteInput{PartIDs: []string{"P-1", "P-2", "P-2"}, Force: true})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Deleted)
	require.Empty(t, repo.parts)
	require.Len(t, notifier.events, 2)

	_, err = svc.Delete(context.Background(), owner, DeleteInput{PartIDs: []string{"P-9"}})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestExportWritesCSV(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, discardLogger())
	_, err := svc.Create(context.Background(), owner, CreateInput{PartID: "P-1", Name: "Bolt, M8", Price: decimal.RequireFromString("1.5"), Quantity: ptr[int64](7), Unit: "pcs"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "Part ID,Part Name,Quantity"))
	require.True(t, strings.HasPrefix(lines[1], `P-1,"Bolt, M8",7,pcs,RM 1.50,50,`))
}

func TestHandlerRoutesAndValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, discardLogger())
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := rbac.Role(r.Header.Get("X-Role"))
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), rbac.Principal{UserID: "u-1", Role: role})))
		})
	})
	NewHandler(discardLogger(), svc, rbac.Middleware{Logger: discardLogger()}).MountRoutes(router)

	do := func(method, path, role, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Role", role)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/", "OWNER", `{"partId":"P-1","partName":"Bolt","partPrice":"1.25","partUoM":"pcs"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "partQuantity")

	rr = do(http.MethodPost, "/", "OWNER", `{"partId":"P-1","partName":"Bolt","partPrice":1.25,"partQuantity":80,"partUoM":"pcs"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(http.MethodPost, "/", "SALES", `{"partId":"P-2","partName":"Nut","partPrice":1,"partQuantity":1,"partUoM":"pcs"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(http.MethodGet, "/list", "SALES", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"partId":"P-1"`)

	rr = do(http.MethodGet, "/P-1", "STORE", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodGet, "/export", "OWNER", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Disposition"), "inventory_export_")
}
