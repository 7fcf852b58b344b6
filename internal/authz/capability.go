package authz

// Action names something a principal can attempt.
type Action string

const (
	ActionViewTask      Action = "task.view"
	ActionComment       Action = "task.comment"
	ActionModifyTask    Action = "task.modify"
	ActionChangeStatus  Action = "task.change_status"
	ActionAssignTask    Action = "task.assign"
	ActionCreateTask    Action = "task.create"
	ActionViewProject   Action = "project.view"
	ActionModifyProject Action = "project.modify"
	ActionCreateProject Action = "project.create"
	ActionViewUser      Action = "user.view"
	ActionUpdateProfile Action = "user.update_profile"
	ActionManageUsers   Action = "user.manage"
)

// capabilities maps every action to the lowest global role that may ever be
// granted it. Relationships can narrow a grant but never lift a principal
// over this ceiling. Change status is open to Guest only so that an assignee
// can move its own task; every other path to it needs the modify ceiling.
var capabilities = map[Action]Role{
	ActionViewTask:      Guest,
	ActionComment:       Guest,
	ActionViewProject:   Guest,
	ActionViewUser:      Guest,
	ActionUpdateProfile: Guest,
	ActionChangeStatus:  Guest,
	ActionModifyTask:    Member,
	ActionCreateTask:    Member,
	ActionModifyProject: Member,
	ActionAssignTask:    ProjectManager,
	ActionCreateProject: ProjectManager,
	ActionManageUsers:   Admin,
}

// MinimumRole returns the capability ceiling for an action. Unknown actions
// report false and are always denied.
func MinimumRole(action Action) (Role, bool) {
	r, ok := capabilities[action]
	return r, ok
}

// Allows reports whether role clears the ceiling for action.
func (r Role) Allows(action Action) bool {
	min, ok := MinimumRole(action)
	return ok && r.AtLeast(min)
}

// Actions lists every known action.
func Actions() []Action {
	out := make([]Action, 0, len(capabilities))
	for a := range capabilities {
		out = append(out, a)
	}
	return out
}
