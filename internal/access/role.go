package access

import (
	"database/sql/driver"
	"errors"
	"fmt"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
)

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleOwner    Role = "owner"
)

var rank = map[Role]int{
	RoleEmployee: 1,
	RoleManager:  2,
	RoleOwner:    3,
}

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return rank[r] >= rank[min] && rank[r] > 0
}

// Permissions maps an app to the capability flags granted to a principal on top of
// their role.
type Permissions map[App]map[string]bool

func (p Permissions) Has(app App, flag string) bool {
	if flag == "" || p == nil {
		return false
	}
	return p[app][flag]
}

// Scan implements the sql.Scanner interface for reading JSON columns.
func (p *Permissions) Scan(value any) error {
	if value == nil {
		*p = Permissions{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported type for Permissions")
	}

	if len(raw) == 0 {
		*p = Permissions{}
		return nil
	}

	out := Permissions{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid permissions: %w", err)
	}
	*p = out
	return nil
}

// Value implements the driver.Valuer interface for writing JSON columns.
func (p Permissions) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Principal is the authenticated actor of a request.
type Principal struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	Permissions Permissions `json:"permissions"`
}

// Actor is the name recorded in the activity log.
func (p *Principal) Actor() string {
	if p == nil {
		return "system"
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}
