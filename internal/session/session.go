// Package session holds the client's record of the signed-in identity and the
// store that persists it in the shared profile.
package session

import (
	"fmt"
	"strings"

	"github.com/ojt-portal/portal-session/internal/autherr"
)

// Role is the portal role of the signed-in user.
type Role string

const (
	RoleStudent Role = "student"
	RoleCompany Role = "company"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
	RoleGuest   Role = "guest"
)

// legacyStudent is the plural spelling older login flows persisted.
const legacyStudent = "students"

// ParseRole parses a role string. The legacy "students" spelling is accepted
// as RoleStudent. The second result is false for unknown values.
func ParseRole(s string) (Role, bool) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case string(RoleStudent), legacyStudent:
		return RoleStudent, true
	case string(RoleCompany), string(RoleStaff), string(RoleAdmin), string(RoleGuest):
		return Role(v), true
	default:
		return "", false
	}
}

// Session is the authenticated identity known to the client.
type Session struct {
	// UserID is absent for provider-only logins.
	UserID *int

	FullName string
	Email    string
	Role     Role

	// Token is the bearer token; absent in the fragment-based provider flow.
	Token string
}

// Validate checks the invariants every stored session must satisfy.
func (s Session) Validate() error {
	if _, ok := ParseRole(string(s.Role)); !ok {
		return fmt.Errorf("%w: unknown role %q", autherr.ErrInvalidSession, s.Role)
	}
	if s.Role != RoleGuest && strings.TrimSpace(s.FullName) == "" {
		return fmt.Errorf("%w: role %s requires a full name", autherr.ErrInvalidSession, s.Role)
	}
	return nil
}

// storedUser is the serialized form kept under KeyUser. Field names match the
// identity endpoint's payload.
type storedUser struct {
	UserID   *int   `json:"userId,omitempty"`
	FullName string `json:"fullname"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}
