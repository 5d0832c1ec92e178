package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/users"
)

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users       Authenticator
	tokens      *TokenManager
	revocations *Revocations
}

// NewService constructs a new Service.
func NewService(users Authenticator, tokens *TokenManager, revocations *Revocations) *Service {
	return &Service{users: users, tokens: tokens, revocations: revocations}
}

// Session is returned to the client after sign-in.
type Session struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
	FullName    string    `json:"fullName"`
	Role        rbac.Role `json:"userRole"`
}

// SignIn validates credentials and issues an access token.
func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	token, claims, err := s.tokens.Issue(rbac.Principal{UserID: u.ID, Username: u.Username, Role: u.Role})
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
		UserID:      u.ID,
		FullName:    u.FullName,
		Role:        u.Role,
	}, nil
}

// Verify parses a token and rejects revoked ones.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("auth: revocation lookup: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignOut revokes the token behind claims.
func (s *Service) SignOut(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
