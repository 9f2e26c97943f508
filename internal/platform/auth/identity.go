package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of account roles issued by the identity provider.
type Role int

const (
	RoleUnknown Role = iota
	RolePatient
	RoleDoctor
	RoleAdmin
)

// ParseRole maps the token's role claim onto Role. An empty claim means patient,
// which is the default role for self-registered accounts.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "patient":
		return RolePatient, nil
	case "doctor":
		return RoleDoctor, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RoleDoctor:
		return "doctor"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Identity is the authenticated caller.
type Identity struct {
	UserID      uuid.UUID
	Role        Role
	IsSuperuser bool
}

// IsAdmin reports whether the caller bypasses ownership checks.
func (i Identity) IsAdmin() bool {
	if i.IsSuperuser {
		return true
	}
	switch i.Role {
	case RoleAdmin:
		return true
	case RolePatient, RoleDoctor, RoleUnknown:
		return false
	default:
		return false
	}
}

// Authenticated reports whether the identity carries a user id.
func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller set by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Authenticated()
}
