package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/curaious/bizops/internal/access"
	"github.com/curaious/bizops/internal/listquery"
	"github.com/curaious/bizops/internal/perrors"
)

type UserService struct {
	repo        *UserRepo
	ownerEmails []string
}

func NewUserService(repo *UserRepo, ownerEmails []string) *UserService {
	return &UserService{repo: repo, ownerEmails: ownerEmails}
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return nil, ErrPasswordDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}

	return s.repo.UpsertLogin(ctx, user.Email, user.Name, user.Role, time.Now().UTC())
}

// LoginWithGoogle provisions the user on first login. Deactivated users are refused.
func (s *UserService) LoginWithGoogle(ctx context.Context, email, name string) (*User, error) {
	role := access.RoleEmployee
	if slices.Contains(s.ownerEmails, strings.ToLower(email)) {
		role = access.RoleOwner
	}

	u, err := s.repo.UpsertLogin(ctx, email, name, role, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}
	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Principal loads the current principal for id. Unknown and deactivated users
// resolve to nil without an error.
func (s *UserService) Principal(ctx context.Context, id uuid.UUID) (*access.Principal, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, nil
	}

	p, err := u.Principal()
	if err != nil {
		slog.WarnContext(ctx, "Stored user has an invalid role", slog.String("user_id", id.String()), slog.Any("error", err))
		return nil, nil
	}
	return p, nil
}

func (s *UserService) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, perrors.NewErrInvalidRequest("valid email is required", nil)
	}
	role := req.Role
	if role == "" {
		role = access.RoleEmployee
	}
	if _, err := access.ParseRole(string(role)); err != nil {
		return nil, perrors.NewErrInvalidRequest(err.Error(), nil)
	}

	now := time.Now().UTC()
	u := &User{
		ID:          uuid.New(),
		Email:       email,
		Name:        strings.TrimSpace(req.Name),
		Role:        role,
		Permissions: access.ValidatePermissions(req.Permissions),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		u.PasswordHash = &h
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Update changes role, permissions or activation. Users are never deleted, and an
// admin cannot lock themselves out.
func (s *UserService) Update(ctx context.Context, actor *access.Principal, id uuid.UUID, req *UpdateUserRequest) (*User, error) {
	if req.Role != nil {
		if _, err := access.ParseRole(string(*req.Role)); err != nil {
			return nil, perrors.NewErrInvalidRequest(err.Error(), nil)
		}
	}
	if req.Permissions != nil {
		clean := access.ValidatePermissions(*req.Permissions)
		req.Permissions = &clean
	}

	if actor != nil && actor.ID == id {
		if req.IsActive != nil && !*req.IsActive {
			return nil, ErrSelfDeactivation
		}
		if req.Role != nil && *req.Role != actor.Role {
			return nil, ErrSelfDeactivation
		}
	}

	return s.repo.Update(ctx, id, req, time.Now().UTC())
}

func (s *UserService) List(ctx context.Context, f Filter, page listquery.Page) ([]User, int, error) {
	if f.Role != "" {
		if _, err := access.ParseRole(f.Role); err != nil {
			return nil, 0, perrors.NewErrInvalidRequest(err.Error(), nil)
		}
	}
	if err := userQuery(f).Err(); err != nil {
		return nil, 0, perrors.NewErrInvalidRequest(err.Error(), nil)
	}
	return s.repo.List(ctx, f, page)
}
