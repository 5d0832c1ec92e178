package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

type claimsKey struct{}

// ClaimsFrom returns the verified claims for the request.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Middleware resolves the bearer token into a principal. Requests without a token pass
// through anonymously; rbac middleware rejects them where a capability is required.
func (s *Service) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := s.Verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, httpx.ErrUnauthorized) && logger != nil {
					logger.Error("verify token", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			ctx := rbac.WithPrincipal(r.Context(), claims.Principal())
			ctx = context.WithValue(ctx, claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header. GET requests may pass access_token in
// the query string for EventSource clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
