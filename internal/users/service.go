package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (User, error)
	FindCredentials(ctx context.Context, username string) (Credentials, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u User, passwordHash string) (User, error)
	Update(ctx context.Context, id string, updates map[string]any) (User, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, cost: bcrypt.DefaultCost}
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[User], error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[User]{}, fmt.Errorf("users: list: %w", err)
	}
	return shared.NewPage(rows, total, filter.Limit, func(u User) shared.Cursor {
		return shared.Cursor{UpdatedAt: u.UpdatedAt, ID: u.ID}
	}), nil
}

// Create registers an account with a generated username and password. The password is
// only ever returned here.
func (s *Service) Create(ctx context.Context, in CreateInput) (Created, error) {
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return Created{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return Created{}, fmt.Errorf("%w: full name required", httpx.ErrValidation)
	}

	username, err := s.uniqueUsername(ctx, fullName)
	if err != nil {
		return Created{}, err
	}
	password, err := randomHex(6)
	if err != nil {
		return Created{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Created{}, fmt.Errorf("users: hash password: %w", err)
	}
	u, err := s.repo.Create(ctx, User{Username: username, Email: strings.TrimSpace(in.Email), FullName: fullName, Role: role}, string(hash))
	if err != nil {
		return Created{}, err
	}
	s.logger.Info("user created", slog.String("user_id", u.ID), slog.String("role", string(role)))
	return Created{User: u, Password: password}, nil
}

// Update patches an account.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (User, error) {
	updates := map[string]any{}
	if in.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Email != nil {
		updates["email"] = strings.TrimSpace(*in.Email)
	}
	if in.Role != nil {
		role, err := rbac.ParseRole(*in.Role)
		if err != nil {
			return User{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		updates["role"] = string(role)
	}
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.cost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		updates["password_hash"] = string(hash)
	}
	return s.repo.Update(ctx, id, updates)
}

// Delete removes accounts. An actor may never delete their own account.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, in DeleteInput) (int64, error) {
	if len(in.UserIDs) == 0 {
		return 0, fmt.Errorf("%w: userIds required", httpx.ErrValidation)
	}
	if slices.Contains(in.UserIDs, actor.UserID) {
		return 0, fmt.Errorf("%w: cannot delete your own account", httpx.ErrForbidden)
	}
	n, err := s.repo.Delete(ctx, in.UserIDs)
	if err != nil {
		return 0, fmt.Errorf("users: delete: %w", err)
	}
	return n, nil
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return User{}, fmt.Errorf("%w: username and password are required", httpx.ErrValidation)
	}
	creds, err := s.repo.FindCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return creds.User, nil
}

func (s *Service) uniqueUsername(ctx context.Context, fullName string) (string, error) {
	base := strings.ToLower(strings.Join(strings.Fields(fullName), "_"))
	for attempt := 0; attempt < 5; attempt++ {
		suffix, err := randomHex(5)
		if err != nil {
			return "", err
		}
		candidate := base + "_" + suffix
		taken, err := s.repo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("users: check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique username", httpx.ErrConflict)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("users: random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
