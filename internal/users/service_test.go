package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/shared"
)

type memoryUserRepo struct {
	nextID    int64
	users     map[int64]User
	events    []audit.Event
	failAudit bool
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[int64]User{}}
}

func (m *memoryUserRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	users := make(map[int64]User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	events := len(m.events)
	if err := fn(ctx, (*memoryUserTx)(m)); err != nil {
		m.users = users
		m.events = m.events[:events]
		return err
	}
	return nil
}

func (m *memoryUserRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryUserRepo) ListUsers(_ context.Context, _ shared.ListWindow) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

type memoryUserTx memoryUserRepo

func (t *memoryUserTx) InsertUser(_ context.Context, u User) (int64, error) {
	for _, existing := range t.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return 0, shared.ErrDuplicate
		}
	}
	t.nextID++
	u.ID = t.nextID
	t.users[u.ID] = u
	return u.ID, nil
}

func (t *memoryUserTx) UpdateUser(_ context.Context, u User) error {
	if _, ok := t.users[u.ID]; !ok {
		return shared.ErrNotFound
	}
	t.users[u.ID] = u
	return nil
}

func (t *memoryUserTx) AppendAudit(_ context.Context, event audit.Event) error {
	if t.failAudit {
		return audit.ErrWriteFailed
	}
	t.events = append(t.events, event)
	return nil
}

var (
	admin   = access.Actor{ID: 1, Role: access.RoleAdmin}
	manager = access.Actor{ID: 2, Role: access.RoleManager}
)

func TestCreateUserHashesPasswordAndAudits(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo)

	u, err := svc.Create(context.Background(), admin, CreateInput{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Password: "correcthorse",
		Role:     "User",
	})
	require.NoError(t, err)
	require.True(t, u.IsActive)
	require.NotEqual(t, "correcthorse", u.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correcthorse")))

	require.Len(t, repo.events, 1)
	require.Equal(t, "user", repo.events[0].EntityType)
	require.Equal(t, audit.ActionCreate, repo.events[0].Action)
	_, hasPassword := repo.events[0].After.Get("hashed_password")
	require.False(t, hasPassword)
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	svc := NewService(newMemoryUserRepo())

	_, err := svc.Create(context.Background(), manager, CreateInput{
		Username: "jdoe", Email: "jdoe@example.com", Password: "correcthorse", Role: "User",
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc := NewService(newMemoryUserRepo())

	_, err := svc.Create(context.Background(), admin, CreateInput{
		Username: "jdoe", Email: "jdoe@example.com", Password: "correcthorse", Role: "Owner",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateUserRoleAndDeactivation(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), admin, CreateInput{
		Username: "jdoe", Email: "jdoe@example.com", Password: "correcthorse", Role: "User",
	})
	require.NoError(t, err)

	role := "Manager"
	active := false
	updated, err := svc.Update(context.Background(), admin, created.ID, UpdateInput{Role: &role, IsActive: &active})
	require.NoError(t, err)
	require.Equal(t, access.RoleManager, updated.Role)
	require.False(t, updated.IsActive)

	require.Len(t, repo.events, 2)
	before, ok := repo.events[1].Before.Get("role")
	require.True(t, ok)
	require.Equal(t, "User", before)
	after, ok := repo.events[1].After.Get("role")
	require.True(t, ok)
	require.Equal(t, "Manager", after)
}

func TestDirectoryVisibleToAllAuthenticated(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), admin, CreateInput{
		Username: "jdoe", Email: "jdoe@example.com", Password: "correcthorse", Role: "User",
	})
	require.NoError(t, err)

	viewer := access.Actor{ID: 9, Role: access.RoleViewer}
	got, err := svc.Get(context.Background(), viewer, created.ID)
	require.NoError(t, err)
	require.Equal(t, "jdoe", got.Username)

	list, err := svc.List(context.Background(), viewer, shared.NewListWindow(0, 0))
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAuditFailureRollsBackUserCreate(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.failAudit = true
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), admin, CreateInput{
		Username: "jdoe", Email: "jdoe@example.com", Password: "correcthorse", Role: "User",
	})
	require.ErrorIs(t, err, audit.ErrWriteFailed)
	require.Empty(t, repo.users)
	require.Empty(t, repo.events)
}
