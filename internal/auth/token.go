package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", httpx.ErrUnauthorized)
	ErrExpiredToken = fmt.Errorf("%w: token expired", httpx.ErrUnauthorized)
)

const issuer = "inventra"

// Claims are the access token claims.
type Claims struct {
	Username string    `json:"username"`
	Role     rbac.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts claims into the request principal.
func (c *Claims) Principal() rbac.Principal {
	return rbac.Principal{UserID: c.Subject, Username: c.Username, Role: c.Role}
}

// TokenManager signs and validates HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the principal.
func (m *TokenManager) Issue(p rbac.Principal) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		Username: p.Username,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates a token and returns its claims.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
