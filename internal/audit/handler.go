package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/inventra/inventra/internal/platform/export"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	exportRateLimit  = 10
	dateLayout       = "2006-01-02"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.AuditView))
		r.Get("/", h.timeline)
		r.With(httprate.Limit(exportRateLimit, time.Minute, httprate.WithKeyFuncs(rateLimitKey))).
			Get("/export", h.export)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFrom(r.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	export.Attachment(w, "audit", h.now())
	if err := h.service.Export(r.Context(), filters, w); err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	fields := httpx.FieldErrors{}

	to := h.now().UTC().Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			fields["to"] = "date"
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			fields["from"] = "date"
		}
		from = parsed
	}
	if len(fields) == 0 {
		if from.After(to) {
			fields["from"] = "ltefield=to"
		} else if to.Sub(from) > maxDateRange {
			fields["from"] = "range=90d"
		}
	}

	page, ok := positiveInt(q.Get("page"), 1)
	if !ok {
		fields["page"] = "min=1"
	}
	pageSize, ok := positiveInt(q.Get("pageSize"), defaultPageSize)
	if !ok {
		fields["pageSize"] = "min=1"
	}
	if len(fields) > 0 {
		return TimelineFilters{}, fields
	}
	return TimelineFilters{
		From:     from,
		To:       to,
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: min(pageSize, maxPageSize),
	}, nil
}

func positiveInt(raw string, def int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
