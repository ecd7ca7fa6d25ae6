package auth

import (
	"context"
	"fmt"
	"strings"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Role is a staff role carried in the token's roles claim.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDoctor     Role = "doctor"
	RoleNurse      Role = "nurse"
	RoleTechnician Role = "technician"
	RoleRegistrar  Role = "registrar"
	RoleBilling    Role = "billing"
	RolePharmacist Role = "pharmacist"
)

var knownRoles = map[Role]bool{
	RoleAdmin:      true,
	RoleDoctor:     true,
	RoleNurse:      true,
	RoleTechnician: true,
	RoleRegistrar:  true,
	RoleBilling:    true,
	RolePharmacist: true,
}

// ParseRole returns the role named by s.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !knownRoles[r] {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// WithPrincipal stores the authenticated user on ctx.
func WithPrincipal(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// HasRole reports whether the principal on ctx holds any of roles. Admin
// holds every role.
func HasRole(ctx context.Context, roles ...Role) bool {
	for _, has := range RolesFromContext(ctx) {
		if Role(has) == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if Role(has) == want {
				return true
			}
		}
	}
	return false
}
