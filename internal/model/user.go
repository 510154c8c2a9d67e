package model

import (
	"strings"
	"time"
)

// Role is a user's access level. Admin includes every User capability.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// Rank returns the role's position in the hierarchy (0 for unknown roles).
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	}
	return 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Satisfies reports whether r grants at least the capabilities of required.
func (r Role) Satisfies(required Role) bool {
	return r.Valid() && r.Rank() >= required.Rank()
}

// User is an account that can assign and complete tasks.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	// Name is an optional display name overriding first/last.
	Name string `json:"name,omitempty"`

	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DisplayName returns the best human-readable name for the user.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Email
}

// SplitName splits a single display name into first and last name.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	first, last, _ = strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}
