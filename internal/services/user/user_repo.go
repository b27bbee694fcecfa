package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/listquery"
)

const userColumns = `id, email, name, role, permissions, is_active, password_hash, last_login_at, created_at, updated_at`

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM portal_users WHERE email = ?`, strings.ToLower(email))
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM portal_users WHERE id = ?`, id)
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user and fails with ErrUserAlreadyExists on a taken email.
func (r *UserRepo) Create(ctx context.Context, u *User) error {
	query := r.db.Rebind(`
		INSERT INTO portal_users (id, email, name, role, permissions, is_active, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, query, u.ID, u.Email, u.Name, u.Role, u.Permissions, u.IsActive, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if n == 0 {
		return ErrUserAlreadyExists
	}
	return nil
}

// UpsertLogin creates the user on first login or stamps last_login_at. Role and
// permissions of an existing user are left untouched.
func (r *UserRepo) UpsertLogin(ctx context.Context, email, name string, role access.Role, at time.Time) (*User, error) {
	query := r.db.Rebind(`
		INSERT INTO portal_users (id, email, name, role, permissions, is_active, last_login_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, '{}', TRUE, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			last_login_at = excluded.last_login_at,
			name = CASE WHEN portal_users.name = '' THEN excluded.name ELSE portal_users.name END,
			updated_at = CASE WHEN portal_users.updated_at > excluded.updated_at
				THEN portal_users.updated_at ELSE excluded.updated_at END
	`)

	if _, err := r.db.ExecContext(ctx, query, uuid.New(), strings.ToLower(email), name, role, at, at, at); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetByEmail(ctx, email)
}

func (r *UserRepo) Update(ctx context.Context, id uuid.UUID, req *UpdateUserRequest, at time.Time) (*User, error) {
	var (
		setParts []string
		args     []any
	)

	if req.Name != nil {
		setParts = append(setParts, "name = ?")
		args = append(args, *req.Name)
	}
	if req.Role != nil {
		setParts = append(setParts, "role = ?")
		args = append(args, *req.Role)
	}
	if req.Permissions != nil {
		setParts = append(setParts, "permissions = ?")
		args = append(args, *req.Permissions)
	}
	if req.IsActive != nil {
		setParts = append(setParts, "is_active = ?")
		args = append(args, *req.IsActive)
	}

	if len(setParts) == 0 {
		return r.GetByID(ctx, id)
	}

	setParts = append(setParts, "updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END")
	args = append(args, at, at, id)

	query := fmt.Sprintf(`UPDATE portal_users SET %s WHERE id = ?`, strings.Join(setParts, ", "))
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUserNotFound
	}

	return r.GetByID(ctx, id)
}

func userQuery(f Filter) *listquery.Builder {
	return listquery.New().
		Search(f.Search, "email", "name").
		Eq("role", f.Role).
		Bool("is_active", f.Active).
		OrderBy("email", "id")
}

func (r *UserRepo) List(ctx context.Context, f Filter, page listquery.Page) ([]User, int, error) {
	b := userQuery(f)

	users := []User{}
	if err := b.Select(ctx, r.db, &users, `SELECT `+userColumns+` FROM portal_users`, page); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	total, err := b.Count(ctx, r.db, "portal_users")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return users, total, nil
}
