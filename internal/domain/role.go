package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleSeller    Role = "VENDEUR"
	RoleModerator Role = "MODERATEUR"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSeller, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a persisted or token role string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor is the seller of the listing
func (a Actor) Owns(l *Listing) bool {
	return l != nil && l.SellerID == a.ID
}

// HasRole reports whether the actor holds any of the given roles
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
