package redirection

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

type memoryStore struct {
	links map[ItemType]map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{links: map[ItemType]map[string]string{
		ItemProduct: {"W-1": ""},
		ItemPart:    {"P 1/A": ""},
	}}
}

func (m *memoryStore) Get(_ context.Context, item ItemType, id string) (string, error) {
	link, ok := m.links[item][id]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", httpx.ErrNotFound, item, id)
	}
	return link, nil
}

func (m *memoryStore) Ensure(ctx context.Context, item ItemType, id, candidate string) (string, error) {
	link, err := m.Get(ctx, item, id)
	if err != nil {
		return "", err
	}
	if link == "" {
		link = candidate
		m.links[item][id] = link
	}
	return link, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildURLEscapesQuery(t *testing.T) {
	link := BuildURL("https://shop.example/", ItemPart, "P 1/A", "SALE")
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/orders", parsed.Path)
	require.Equal(t, "P 1/A", parsed.Query().Get("id"))
	require.Equal(t, "SALE", parsed.Query().Get("orderType"))
	require.Equal(t, "part", parsed.Query().Get("itemType"))
}

func TestEnsureGeneratesOnceAndKeepsLink(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, "https://shop.example")

	first, err := svc.Ensure(context.Background(), CreateInput{ID: "W-1"})
	require.NoError(t, err)
	require.Equal(t, "https://shop.example/orders?id=W-1&itemType=product&orderType=STOCK", first)

	again, err := svc.Ensure(context.Background(), CreateInput{ID: "W-1", OrderType: "SALE"})
	require.NoError(t, err)
	require.Equal(t, first, again)

	_, err = svc.Ensure(context.Background(), CreateInput{ID: "ghost"})
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.Ensure(context.Background(), CreateInput{ID: "W-1", ItemType: "pallet"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestQRCodeRendersPNGAndStoresLink(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, "https://shop.example")

	img, err := svc.QRCode(context.Background(), ItemPart, "P 1/A", 128)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	require.Equal(t, 128, decoded.Bounds().Dx())
	require.NotEmpty(t, store.links[ItemPart]["P 1/A"])

	img, err = svc.QRCode(context.Background(), ItemPart, "P 1/A", 1<<20)
	require.NoError(t, err)
	decoded, err = png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	require.Equal(t, DefaultQRSize, decoded.Bounds().Dx())
}

func TestHandlerRoutes(t *testing.T) {
	svc := NewService(newMemoryStore(), "https://shop.example")
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := rbac.Role(r.Header.Get("X-Role"))
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), rbac.Principal{UserID: "u-1", Role: role})))
		})
	})
	NewHandler(discardLogger(), svc, rbac.Middleware{Logger: discardLogger()}).MountRoutes(router)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Role", "STORE")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/product/W-1", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(http.MethodPost, "/create", `{"id":"W-1","orderType":"REFUND"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/create", `{"id":"W-1","itemType":"product","orderType":"SALE"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"redirectUrl":"https://shop.example/orders?id=W-1&itemType=product&orderType=SALE"}`, rr.Body.String())

	rr = do(http.MethodGet, "/product/W-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "orderType=SALE")

	rr = do(http.MethodGet, "/product/W-1/qr?size=96", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "qr-product-W-1.png")

	rr = do(http.MethodGet, "/pallet/W-1/qr", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
