// Package authz decides whether a principal may perform an action on a
// user, project or task.
//
// Decisions combine a closed global role hierarchy with per-resource
// relationships (project membership, task assignment and collaboration).
// The package holds no I/O of its own: stored state is read through the
// PrincipalLookup and RelationshipLookup interfaces.
package authz

import "strings"

// Role is the global role of a user. Higher values include every capability
// of lower ones: Admin ⊇ ProjectManager ⊇ Member ⊇ Guest.
type Role int

const (
	Guest Role = iota
	Member
	ProjectManager
	Admin
)

var roleNames = map[Role]string{
	Guest:          "guest",
	Member:         "member",
	ProjectManager: "project_manager",
	Admin:          "admin",
}

// roleAliases accepts the canonical names plus common short forms.
var roleAliases = map[string]Role{
	"guest":           Guest,
	"member":          Member,
	"project_manager": ProjectManager,
	"projectmanager":  ProjectManager,
	"pm":              ProjectManager,
	"admin":           Admin,
}

// ParseRole converts a stored or requested role name into a Role.
// It is total: unknown, empty or malformed input yields Guest.
func ParseRole(s string) Role {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return Guest
}

// String returns the canonical name stored in the database.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return roleNames[Guest]
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool { return r > other }

// AtLeast reports whether r is equal to or above min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// Roles lists every role from lowest to highest.
func Roles() []Role { return []Role{Guest, Member, ProjectManager, Admin} }

// IsRoleName reports whether s names a role exactly (after case folding).
func IsRoleName(s string) bool {
	_, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ProjectRole is a user's role inside a single project.
type ProjectRole int

const (
	ProjectViewer ProjectRole = iota
	ProjectMember
	ProjectAdmin
)

var projectRoleNames = map[ProjectRole]string{
	ProjectViewer: "project_viewer",
	ProjectMember: "project_member",
	ProjectAdmin:  "project_admin",
}

// ParseProjectRole is total: unknown input yields ProjectViewer.
func ParseProjectRole(s string) ProjectRole {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range projectRoleNames {
		if s == name || s == strings.TrimPrefix(name, "project_") {
			return r
		}
	}
	return ProjectViewer
}

func (r ProjectRole) String() string {
	if name, ok := projectRoleNames[r]; ok {
		return name
	}
	return projectRoleNames[ProjectViewer]
}

// IsProjectRoleName reports whether s names a project role.
func IsProjectRoleName(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, name := range projectRoleNames {
		if s == name || s == strings.TrimPrefix(name, "project_") {
			return true
		}
	}
	return false
}
