package user

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/bizops/internal/access"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserInactive      = errors.New("user is deactivated")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrPasswordDisabled  = errors.New("password login is not enabled for this user")
	ErrSelfDeactivation  = errors.New("cannot deactivate or demote yourself")
)

type User struct {
	ID           uuid.UUID          `db:"id" json:"id"`
	Email        string             `db:"email" json:"email"`
	Name         string             `db:"name" json:"name"`
	Role         access.Role        `db:"role" json:"role"`
	Permissions  access.Permissions `db:"permissions" json:"permissions"`
	IsActive     bool               `db:"is_active" json:"is_active"`
	PasswordHash *string            `db:"password_hash" json:"-"`
	LastLoginAt  *time.Time         `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}

// Principal converts a stored user into the request principal, validating the role.
func (u *User) Principal() (*access.Principal, error) {
	role, err := access.ParseRole(string(u.Role))
	if err != nil {
		return nil, err
	}
	perms := u.Permissions
	if perms == nil {
		perms = access.Permissions{}
	}
	return &access.Principal{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        role,
		Permissions: perms,
	}, nil
}

type CreateUserRequest struct {
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        access.Role        `json:"role"`
	Permissions access.Permissions `json:"permissions"`
	Password    string             `json:"password,omitempty"`
}

type UpdateUserRequest struct {
	Name        *string             `json:"name,omitempty"`
	Role        *access.Role        `json:"role,omitempty"`
	Permissions *access.Permissions `json:"permissions,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
}

type Filter struct {
	Search string
	Role   string
	Active string
}
