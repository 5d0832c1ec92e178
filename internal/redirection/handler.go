package redirection

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

// Handler exposes order link endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the order link handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers order link routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RedirectsManage))
		r.Post("/create", h.create)
		r.Get("/{itemType}/{id}", h.get)
		r.Get("/{itemType}/{id}/qr", h.qr)
	})
}

type linkResponse struct {
	RedirectURL string `json:"redirectUrl"`
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
	link, err := h.service.Ensure(r.Context(), in)
	if err != nil {
		h.logger.Warn("create order link", slog.String("id", in.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, linkResponse{RedirectURL: link})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := ParseItemType(chi.URLParam(r, "itemType"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	link, err := h.service.Get(r.Context(), item, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if link == "" {
		httpx.RespondError(w, fmt.Errorf("%w: no order link generated for %s", httpx.ErrNotFound, chi.URLParam(r, "id")))
		return
	}
	httpx.JSON(w, http.StatusOK, linkResponse{RedirectURL: link})
}

func (h *Handler) qr(w http.ResponseWriter, r *http.Request) {
	item, err := ParseItemType(chi.URLParam(r, "itemType"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	png, err := h.service.QRCode(r.Context(), item, id, httpx.QueryInt(r, "size", DefaultQRSize))
	if err != nil {
		h.logger.Warn("render order qr", slog.String("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "qr-"+string(item)+"-"+id+".png"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
