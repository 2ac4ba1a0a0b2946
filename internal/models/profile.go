package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleTenant Role = "tenant"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Profile mirrors the identity owned by the external auth provider.
type Profile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      Role      `json:"role" db:"role"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks basic profile fields
func (p *Profile) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("invalid email")
	}
	if p.FullName == "" {
		return fmt.Errorf("full name is required")
	}
	if len(p.FullName) < 2 || len(p.FullName) > 100 {
		return fmt.Errorf("full name length invalid")
	}
	switch p.Role {
	case RoleTenant, RoleAgent, RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", p.Role)
	}
	return nil
}

type UserPresence struct {
	UserID   uuid.UUID `json:"user_id"`
	Status   string    `json:"status"` // online, offline
	LastSeen time.Time `json:"last_seen"`
}
