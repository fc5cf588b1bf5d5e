// Package identity models the users acting on the system and the roles they hold.
// Authentication itself happens at the edge; the domain only sees a resolved User.
package identity

import (
	"context"
	"slices"
)

// Role names recognised by the access rules.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleSupervisor    Role = "supervisor"
	RoleProfessor     Role = "professor"
	RoleStudent       Role = "student"
	RoleManager       Role = "manager"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdministrator, RoleSupervisor, RoleProfessor, RoleStudent, RoleManager:
		return true
	default:
		return false
	}
}

// Group is a membership list that grants extra visibility, e.g. the
// "My Project" area of an elected student.
type Group string

const (
	// GroupElectedStudent holds students currently assigned to a project.
	GroupElectedStudent Group = "elected_student"
)

// User is an authenticated account.
type User struct {
	ID        string
	Name      string
	Email     string
	PartnerID string
	Roles     []Role
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// IsAdmin reports whether the user is an administrator.
func (u User) IsAdmin() bool { return u.HasRole(RoleAdministrator) }

// IsSupervisor reports whether the user supervises at least one program.
func (u User) IsSupervisor() bool { return u.HasRole(RoleSupervisor) }

// IsManager reports whether the user manages programs of a faculty.
func (u User) IsManager() bool { return u.HasRole(RoleManager) }

// IsStaffOverride reports whether the user may bypass ownership checks
// (administrators and supervisors).
func (u User) IsStaffOverride() bool {
	return u.IsAdmin() || u.IsSupervisor()
}

// Provider resolves bearer credentials into users.
type Provider interface {
	// Authenticate validates token and returns its user.
	Authenticate(ctx context.Context, token string) (*User, error)
}

// GroupRepository manages group membership.
type GroupRepository interface {
	AddMember(ctx context.Context, group Group, userID string) error
	RemoveMember(ctx context.Context, group Group, userID string) error
	IsMember(ctx context.Context, group Group, userID string) (bool, error)
}

type ctxKey struct{}

// WithUser attaches the current user to ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// CurrentUser returns the user attached to ctx, if any.
func CurrentUser(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil
}
