package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

const heartbeatInterval = 25 * time.Second

// Subscriber opens a live notification feed for one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan Notification, error)
}

// Handler exposes notification endpoints for the signed-in user.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	subscriber Subscriber
	rbac       rbac.Middleware
	validator  *validator.Validate
	heartbeat  time.Duration
}

// NewHandler builds Handler instance. subscriber may be nil, which disables streaming.
func NewHandler(logger *slog.Logger, service *Service, subscriber Subscriber, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, subscriber: subscriber, rbac: rbac, validator: httpx.NewValidator(), heartbeat: heartbeatInterval}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.NotificationsView))
		r.Get("/", h.list)
		r.Get("/unread-count", h.unreadCount)
		r.Post("/mark-as-read", h.markRead)
		r.Post("/mark-all-as-read", h.markAllRead)
		r.Get("/stream", h.stream)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFrom(r.Context())
	q := r.URL.Query()
	page, err := shared.NewPageRequest(q.Get("limit"), q.Get("cursor"), "")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), principal.UserID, page)
	if err != nil {
		h.logger.Error("list notifications failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFrom(r.Context())
	n, err := h.service.UnreadCount(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	var in MarkReadInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, httpx.FromValidator(err))
		return
	}
	principal, _ := rbac.PrincipalFrom(r.Context())
	n, err := h.service.MarkRead(r.Context(), principal.UserID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFrom(r.Context())
	n, err := h.service.MarkAllRead(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || h.subscriber == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Streaming unsupported", "")
		return
	}
	principal, _ := rbac.PrincipalFrom(r.Context())
	feed, err := h.subscriber.Subscribe(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("subscribe notifications failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Stream unavailable", "")
		return
	}

	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-feed:
			if !ok {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: notification\nid: %s\ndata: %s\n\n", n.ID, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
