package rbac

import (
	"log/slog"
	"net/http"

	"github.com/inventra/inventra/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal holds at least one of the capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, c := range caps {
				if Can(principal.Role, c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.String("user_id", principal.UserID),
					slog.String("role", string(principal.Role)),
					slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// RequireAuthenticated only checks that a principal is present.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.RequireAny()
}
