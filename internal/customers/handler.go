package customers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// Handler exposes customer endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the customer handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CustomersView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CustomersManage))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := shared.NewPageRequest(q.Get("limit"), q.Get("cursor"), q.Get("search"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), ListFilter{PageRequest: page})
	if err != nil {
		h.logger.Error("list customers failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.service.Create(r.Context(), principal, in)
	if err != nil {
		h.logger.Error("create customer failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.service.Update(r.Context(), principal, chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
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
