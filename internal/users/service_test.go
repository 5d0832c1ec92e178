package users

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

type memoryRepo struct {
	users  map[string]Credentials
	taken  map[string]bool
	delete []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]Credentials{}, taken: map[string]bool{}}
}

func (m *memoryRepo) Get(_ context.Context, id string) (User, error) {
	c, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", httpx.ErrNotFound, id)
	}
	return c.User, nil
}

func (m *memoryRepo) FindCredentials(_ context.Context, username string) (Credentials, error) {
	for _, c := range m.users {
		if c.Username == username {
			return c, nil
		}
	}
	return Credentials{}, httpx.ErrNotFound
}

func (m *memoryRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	return m.taken[username], nil
}

func (m *memoryRepo) Create(_ context.Context, u User, hash string) (User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = Credentials{User: u, PasswordHash: hash}
	m.taken[u.Username] = true
	return u, nil
}

func (m *memoryRepo) Update(_ context.Context, id string, updates map[string]any) (User, error) {
	c, ok := m.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	if v, ok := updates["role"]; ok {
		c.Role = rbac.Role(v.(string))
	}
	if v, ok := updates["password_hash"]; ok {
		c.PasswordHash = v.(string)
	}
	m.users[id] = c
	return c.User, nil
}

func (m *memoryRepo) Delete(_ context.Context, ids []string) (int64, error) {
	m.delete = append(m.delete, ids...)
	return int64(len(ids)), nil
}

func (m *memoryRepo) List(context.Context, ListFilter) ([]User, int, error) {
	return nil, 0, nil
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestCreateGeneratesCredentialsThatAuthenticate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{FullName: "Ada  Lovelace", Role: "sales"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.User.Username, "ada_lovelace_"))
	require.Len(t, created.Password, 12)
	require.Equal(t, rbac.RoleSales, created.User.Role)

	u, err := svc.Authenticate(ctx, strings.ToUpper(created.User.Username), " "+created.Password+" ")
	require.NoError(t, err)
	require.Equal(t, created.User.ID, u.ID)

	_, err = svc.Authenticate(ctx, created.User.Username, "wrong-password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.ErrorIs(t, err, httpx.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	_, err := newTestService(newMemoryRepo()).Create(context.Background(), CreateInput{FullName: "X", Role: "AGENT"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteForbidsSelf(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	actor := rbac.Principal{UserID: "me", Role: rbac.RoleAdmin}

	_, err := svc.Delete(context.Background(), actor, DeleteInput{UserIDs: []string{"other", "me"}})
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Empty(t, repo.delete)

	n, err := svc.Delete(context.Background(), actor, DeleteInput{UserIDs: []string{"other"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestUpdateRehashesPassword(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	created, err := svc.Create(ctx, CreateInput{FullName: "Grace", Role: "OWNER"})
	require.NoError(t, err)

	pw := "correct horse"
	role := "ADMIN"
	u, err := svc.Update(ctx, created.User.ID, UpdateInput{Password: &pw, Role: &role})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleAdmin, u.Role)

	_, err = svc.Authenticate(ctx, created.User.Username, pw)
	require.NoError(t, err)
}
