package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleOwner Role = "OWNER"
	RoleSales Role = "SALES"
	RoleStore Role = "STORE"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleOwner, RoleSales, RoleStore}

// ParseRole normalises and validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Principal describes the authenticated actor.
type Principal struct {
	UserID   string
	Username string
	Role     Role
}

type principalKey struct{}

// WithPrincipal stores the principal in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}
