package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/users"
)

// UserReader loads the current account for /me.
type UserReader interface {
	Get(ctx context.Context, id string) (users.User, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	users     UserReader
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, users UserReader, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, users: users, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sign-in", h.handleSignIn)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Post("/sign-out", h.handleSignOut)
		r.Get("/me", h.handleMe)
	})
}

type signInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.FromValidator(err))
		return
	}
	session, err := h.service.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn("sign-in failed", slog.String("username", req.Username), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	if err := h.service.SignOut(r.Context(), claims); err != nil {
		h.logger.Error("sign-out failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFrom(r.Context())
	u, err := h.users.Get(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":         u,
		"capabilities": rbac.Capabilities(u.Role),
	})
}
