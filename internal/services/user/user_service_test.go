package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
	"github.com/curaious/bizops/internal/testutil"
)

func newService(t *testing.T) *UserService {
	return NewUserService(NewUserRepo(testutil.NewDB(t)), []string{"boss@example.com"})
}

func TestLoginWithGoogle_ProvisionsOnce(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.LoginWithGoogle(ctx, "Tech@Example.com", "Tech One")
	require.NoError(t, err)
	assert.Equal(t, "tech@example.com", first.Email)
	assert.Equal(t, access.RoleEmployee, first.Role)
	assert.True(t, first.IsActive)

	manager := access.RoleManager
	_, err = svc.Update(ctx, nil, first.ID, &UpdateUserRequest{Role: &manager})
	require.NoError(t, err)

	again, err := svc.LoginWithGoogle(ctx, "tech@example.com", "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, access.RoleManager, again.Role, "login must not reset the role")
	assert.Equal(t, "Tech One", again.Name)
	assert.NotNil(t, again.LastLoginAt)

	owner, err := svc.LoginWithGoogle(ctx, "boss@example.com", "Boss")
	require.NoError(t, err)
	assert.Equal(t, access.RoleOwner, owner.Role)
}

func TestPrincipal_InactiveResolvesToNone(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.LoginWithGoogle(ctx, "tech@example.com", "Tech")
	require.NoError(t, err)

	p, err := svc.Principal(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, access.RoleEmployee, p.Role)

	inactive := false
	_, err = svc.Update(ctx, nil, u.ID, &UpdateUserRequest{IsActive: &inactive})
	require.NoError(t, err)

	p, err = svc.Principal(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = svc.LoginWithGoogle(ctx, "tech@example.com", "Tech")
	assert.ErrorIs(t, err, ErrUserInactive)

	p, err = svc.Principal(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &CreateUserRequest{
		Email:       "office@example.com",
		Name:        "Office",
		Role:        access.RoleManager,
		Password:    "hunter22",
		Permissions: access.Permissions{access.AppPayables: {"can_manage_payments": true, "bogus": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, access.Permissions{access.AppPayables: {"can_manage_payments": true}}, created.Permissions)

	_, err = svc.Create(ctx, &CreateUserRequest{Email: "office@example.com"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	u, err := svc.Authenticate(ctx, "office@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, err = svc.Authenticate(ctx, "office@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	google, err := svc.LoginWithGoogle(ctx, "field@example.com", "Field")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, google.Email, "anything")
	assert.ErrorIs(t, err, ErrPasswordDisabled)

	_, err = svc.Create(ctx, &CreateUserRequest{Email: "x@example.com", Role: access.Role("admin")})
	assert.Error(t, err)
}

func TestUpdate_SelfLockout(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	owner, err := svc.LoginWithGoogle(ctx, "boss@example.com", "Boss")
	require.NoError(t, err)
	actor, err := owner.Principal()
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, actor, owner.ID, &UpdateUserRequest{IsActive: &inactive})
	assert.ErrorIs(t, err, ErrSelfDeactivation)

	_, err = svc.Update(ctx, actor, uuid.New(), &UpdateUserRequest{IsActive: &inactive})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestList(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, e := range []string{"a@example.com", "b@example.com", "boss@example.com"} {
		_, err := svc.LoginWithGoogle(ctx, e, "")
		require.NoError(t, err)
	}

	users, total, err := svc.List(ctx, Filter{Role: "employee"}, listquery.NewPage(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "a@example.com", users[0].Email)

	_, total, err = svc.List(ctx, Filter{Search: "BOSS"}, listquery.NewPage(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestList_RejectsBadFilters(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, f := range []Filter{{Active: "maybe"}, {Role: "admiral"}} {
		_, _, err := svc.List(ctx, f, listquery.NewPage(0, 0, 20))
		require.Error(t, err)
		assert.Equal(t, 400, perrors.Status(err), "%+v", f)
	}

	_, _, err := svc.List(ctx, Filter{Active: "true"}, listquery.NewPage(0, 0, 20))
	assert.NoError(t, err)
}

func TestRepo_UpdatedAtNeverMovesBack(t *testing.T) {
	repo := NewUserRepo(testutil.NewDB(t))
	ctx := context.Background()

	later := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	earlier := later.Add(-2 * time.Hour)

	u, err := repo.UpsertLogin(ctx, "tech@example.com", "Tech", access.RoleEmployee, later)
	require.NoError(t, err)
	require.True(t, u.UpdatedAt.Equal(later))

	u, err = repo.UpsertLogin(ctx, "tech@example.com", "Tech", access.RoleEmployee, earlier)
	require.NoError(t, err)
	assert.True(t, u.UpdatedAt.Equal(later), "login stamp moved updated_at back to %s", u.UpdatedAt)

	name := "Tech Two"
	u, err = repo.Update(ctx, u.ID, &UpdateUserRequest{Name: &name}, earlier)
	require.NoError(t, err)
	assert.Equal(t, "Tech Two", u.Name)
	assert.True(t, u.UpdatedAt.Equal(later), "update moved updated_at back to %s", u.UpdatedAt)
}
