package products

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inventra/inventra/internal/platform/export"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// Handler exposes product endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the product handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.ProductsList)).Get("/list", h.listSummaries)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ProductsView))
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.ProductsManage))
		r.Get("/export", h.exportProducts)
		r.Post("/", h.createProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/", h.deleteProducts)
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := shared.NewPageRequest(q.Get("limit"), q.Get("cursor"), q.Get("search"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), ListFilter{PageRequest: page})
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListSummaries(r.Context())
	if err != nil {
		h.logger.Error("list product summaries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
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
	product, err := h.service.Create(r.Context(), principal, in)
	if err != nil {
		h.logger.Error("create product failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, httpx.FromValidator(err))
		return
	}
	principal, _ := rbac.PrincipalFrom(r.Context())
	product, err := h.service.Update(r.Context(), principal, chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProducts(w http.ResponseWriter, r *http.Request) {
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
	n, err := h.service.Delete(r.Context(), principal, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) exportProducts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf); err != nil {
		h.logger.Error("export products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	export.Attachment(w, "products", time.Now())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
