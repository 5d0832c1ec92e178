package orders

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inventra/inventra/internal/platform/export"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// IdempotencyHeader carries the optional client-chosen key for order creation.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
	hooks     sync.WaitGroup
}

// NewHandler constructs the order handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.OrdersExport)).Get("/export", h.exportOrders)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.OrdersView))
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
	})
	r.With(h.rbac.RequireAny(rbac.OrdersCreate)).Post("/", h.createOrder)
	r.With(h.rbac.RequireAny(rbac.OrdersDelete)).Delete("/", h.deleteOrders)
}

// Wait blocks until every dispatched post-commit hook has finished.
func (h *Handler) Wait() {
	h.hooks.Wait()
}

func (h *Handler) dispatch(ctx context.Context, hooks []Hook) {
	if len(hooks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	h.hooks.Add(1)
	go func() {
		defer h.hooks.Done()
		RunHooks(ctx, hooks)
	}()
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, httpx.FromValidator(err))
		return
	}
	principal, _ := rbac.PrincipalFrom(r.Context())
	result, err := h.service.Create(r.Context(), principal, in, strings.TrimSpace(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		h.logger.Warn("create order failed", slog.String("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
	h.dispatch(r.Context(), result.Hooks)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := shared.NewPageRequest(q.Get("limit"), q.Get("cursor"), q.Get("search"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), ListFilter{PageRequest: page})
	if err != nil {
		h.logger.Error("list orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) deleteOrders(w http.ResponseWriter, r *http.Request) {
	var in DeleteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, httpx.FromValidator(err))
		return
	}
	principal, _ := rbac.PrincipalFrom(r.Context())
	result, err := h.service.Delete(r.Context(), principal, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
	h.dispatch(r.Context(), result.Hooks)
}

func (h *Handler) exportOrders(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf); err != nil {
		h.logger.Error("export orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	export.Attachment(w, "orders", time.Now())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
