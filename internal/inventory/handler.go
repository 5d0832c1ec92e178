package inventory

import (
	"bytes"
	"errors"
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

// Handler wires HTTP endpoints for inventory parts.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.InventoryList))
		r.Get("/list", h.listSummaries)
		r.Get("/{id}", h.getPart)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.InventoryManage))
		r.Get("/", h.listParts)
		r.Get("/export", h.exportParts)
		r.Post("/", h.createPart)
		r.Patch("/{id}", h.updatePart)
		r.Delete("/", h.deleteParts)
	})
}

func (h *Handler) listParts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := shared.NewPageRequest(q.Get("limit"), q.Get("cursor"), q.Get("search"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), ListFilter{PageRequest: page})
	if err != nil {
		h.logger.Error("list parts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	parts, err := h.service.ListSummaries(r.Context())
	if err != nil {
		h.logger.Error("list part summaries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, parts)
}

func (h *Handler) getPart(w http.ResponseWriter, r *http.Request) {
	part, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) createPart(w http.ResponseWriter, r *http.Request) {
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
	part, err := h.service.Create(r.Context(), principal, in)
	if err != nil {
		h.logger.Error("create part failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, part)
}

func (h *Handler) updatePart(w http.ResponseWriter, r *http.Request) {
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
	part, err := h.service.Update(r.Context(), principal, chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) deleteParts(w http.ResponseWriter, r *http.Request) {
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
		if errors.Is(err, httpx.ErrConflict) && len(result.References) > 0 {
			httpx.JSON(w, http.StatusConflict, map[string]any{
				"title":      "Part in use",
				"status":     http.StatusConflict,
				"detail":     err.Error(),
				"references": result.References,
			})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) exportParts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf); err != nil {
		h.logger.Error("export parts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	export.Attachment(w, "inventory", time.Now())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
