package authz

import (
	"context"

	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/huangang/tasksentry/pkg/outcome"
)

// Deny reasons. They are safe to show to the caller and never reveal
// whether the target resource exists.
const (
	ReasonUnknownActor     = "inactive or unknown actor"
	ReasonInsufficientRole = "insufficient role"
	ReasonNotPermitted     = "access denied"
	ReasonUnavailable      = "authorization unavailable"
	ReasonSelf             = "operation not allowed on your own account"
)

// Rules recorded on a Grant.
const (
	RuleAdmin         = "admin"
	RuleManager       = "project_manager"
	RuleSelf          = "self"
	RuleAssignee      = "assignee"
	RuleCollaborator  = "collaborator"
	RuleMembership    = "membership"
	RuleProjectAdmin  = "project_admin"
	RuleProjectMember = "project_member"
)

// Principal is the stored view of a user that decisions are made on.
type Principal struct {
	ID          uint
	DisplayName string
	Role        Role
	Active      bool
}

// Membership is a user's relationship to a project.
type Membership struct {
	Role   ProjectRole
	Active bool
}

// TaskRef carries the task fields a decision needs.
type TaskRef struct {
	ID         uint
	ProjectID  uint
	AssigneeID *uint
}

// PrincipalLookup resolves a user id to its current stored state.
type PrincipalLookup interface {
	Principal(ctx context.Context, id uint) (Principal, bool, error)
}

// RelationshipLookup answers relationship questions about projects and tasks.
type RelationshipLookup interface {
	ProjectMembership(ctx context.Context, projectID, userID uint) (Membership, bool, error)
	IsTaskCollaborator(ctx context.Context, taskID, userID uint) (bool, error)
	ProjectManager(ctx context.Context, projectID uint) (uint, error)
}

// Recorder observes decisions, typically for metrics.
type Recorder interface {
	ObserveDecision(action Action, granted bool)
}

// Grant is the payload of a successful decision.
type Grant struct {
	Action Action `json:"action"`
	Rule   string `json:"rule"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder attaches a decision recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine evaluates authorization decisions. It keeps no per-request state and
// is safe for concurrent use.
//
// Every resource check runs the same gates in order: the actor must be an
// existing active principal, its role must clear the action's ceiling, Admin
// is granted outright, and otherwise a relationship to the resource must
// grant the action. Anything left over is denied.
type Engine struct {
	principals PrincipalLookup
	relations  RelationshipLookup
	recorder   Recorder
}

// NewEngine creates an Engine over the given lookups.
func NewEngine(principals PrincipalLookup, relations RelationshipLookup, opts ...Option) *Engine {
	e := &Engine{principals: principals, relations: relations}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// relateFunc is the relationship gate of one action. It returns the granting
// rule, or "" when no relationship grants it.
type relateFunc func(ctx context.Context, actor Principal) (string, error)

func (e *Engine) decide(ctx context.Context, actorID uint, action Action, relate relateFunc) outcome.Outcome[Grant] {
	rule, reason := e.evaluate(ctx, actorID, action, relate)
	if reason != "" {
		return e.deny(action, reason)
	}
	return e.grant(action, rule)
}

// evaluate runs the gates without recording the result. Exactly one of rule
// and reason is set.
func (e *Engine) evaluate(ctx context.Context, actorID uint, action Action, relate relateFunc) (rule, reason string) {
	actor, reason, ok := e.actor(ctx, actorID)
	if !ok {
		return "", reason
	}

	if !actor.Role.Allows(action) {
		return "", ReasonInsufficientRole
	}
	if actor.Role == Admin {
		return RuleAdmin, ""
	}
	if relate == nil {
		return "", ReasonNotPermitted
	}

	rule, err := relate(ctx, actor)
	if err != nil {
		logger.Error().Err(err).
			Str("action", string(action)).
			Uint("actor_id", actorID).
			Msg("Relationship lookup failed")
		return "", ReasonUnavailable
	}
	if rule == "" {
		return "", ReasonNotPermitted
	}
	return rule, ""
}

// actor runs the identity gate. On failure it returns the deny reason.
func (e *Engine) actor(ctx context.Context, actorID uint) (Principal, string, bool) {
	if actorID == 0 {
		return Principal{}, ReasonUnknownActor, false
	}
	p, found, err := e.principals.Principal(ctx, actorID)
	if err != nil {
		logger.Error().Err(err).Uint("actor_id", actorID).Msg("Principal lookup failed")
		return Principal{}, ReasonUnavailable, false
	}
	if !found || !p.Active {
		return Principal{}, ReasonUnknownActor, false
	}
	return p, "", true
}

func (e *Engine) grant(action Action, rule string) outcome.Outcome[Grant] {
	e.observe(action, true)
	return outcome.Success(Grant{Action: action, Rule: rule})
}

func (e *Engine) deny(action Action, reason string) outcome.Outcome[Grant] {
	e.observe(action, false)
	logger.Debug().Str("action", string(action)).Str("reason", reason).Msg("Authorization denied")
	return outcome.Failure[Grant](reason)
}

func (e *Engine) observe(action Action, granted bool) {
	if e.recorder != nil {
		e.recorder.ObserveDecision(action, granted)
	}
}

// managesProject reports whether a ProjectManager actor is the project's manager.
func (e *Engine) managesProject(ctx context.Context, actor Principal, projectID uint) (bool, error) {
	if actor.Role != ProjectManager {
		return false, nil
	}
	managerID, err := e.relations.ProjectManager(ctx, projectID)
	if err != nil {
		return false, err
	}
	return managerID != 0 && managerID == actor.ID, nil
}

// activeMembership returns the actor's membership if it is active.
func (e *Engine) activeMembership(ctx context.Context, projectID, userID uint) (Membership, bool, error) {
	m, found, err := e.relations.ProjectMembership(ctx, projectID, userID)
	if err != nil || !found || !m.Active {
		return Membership{}, false, err
	}
	return m, true, nil
}

func isAssignee(task TaskRef, userID uint) bool {
	return task.AssigneeID != nil && *task.AssigneeID == userID
}

// CanViewTask grants the project's manager, the assignee, an active
// collaborator and any active member of the owning project.
func (e *Engine) CanViewTask(ctx context.Context, actorID uint, task TaskRef) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionViewTask, e.viewTaskRule(task))
}

// Visible reports whether the actor could view the task, without recording a
// decision. Services use it to hide a task after another check was denied.
func (e *Engine) Visible(ctx context.Context, actorID uint, task TaskRef) bool {
	_, reason := e.evaluate(ctx, actorID, ActionViewTask, e.viewTaskRule(task))
	return reason == ""
}

// CanComment follows the view rule.
func (e *Engine) CanComment(ctx context.Context, actorID uint, task TaskRef) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionComment, e.viewTaskRule(task))
}

func (e *Engine) viewTaskRule(task TaskRef) relateFunc {
	return func(ctx context.Context, actor Principal) (string, error) {
		manages, err := e.managesProject(ctx, actor, task.ProjectID)
		if err != nil {
			return "", err
		}
		if manages {
			return RuleManager, nil
		}
		if isAssignee(task, actor.ID) {
			return RuleAssignee, nil
		}
		collab, err := e.relations.IsTaskCollaborator(ctx, task.ID, actor.ID)
		if err != nil {
			return "", err
		}
		if collab {
			return RuleCollaborator, nil
		}
		_, member, err := e.activeMembership(ctx, task.ProjectID, actor.ID)
		if err != nil {
			return "", err
		}
		if member {
			return RuleMembership, nil
		}
		return "", nil
	}
}

// CanModifyTask grants the project's manager, the assignee and an active
// ProjectAdmin of the owning project.
func (e *Engine) CanModifyTask(ctx context.Context, actorID uint, task TaskRef) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionModifyTask, e.modifyTaskRule(task))
}

// CanChangeStatus grants the assignee regardless of role. Anyone else needs
// the modify ceiling and the modify rule.
func (e *Engine) CanChangeStatus(ctx context.Context, actorID uint, task TaskRef) outcome.Outcome[Grant] {
	modify := e.modifyTaskRule(task)
	return e.decide(ctx, actorID, ActionChangeStatus, func(ctx context.Context, actor Principal) (string, error) {
		if isAssignee(task, actor.ID) {
			return RuleAssignee, nil
		}
		if !actor.Role.Allows(ActionModifyTask) {
			return "", nil
		}
		return modify(ctx, actor)
	})
}

func (e *Engine) modifyTaskRule(task TaskRef) relateFunc {
	return func(ctx context.Context, actor Principal) (string, error) {
		manages, err := e.managesProject(ctx, actor, task.ProjectID)
		if err != nil {
			return "", err
		}
		if manages {
			return RuleManager, nil
		}
		if isAssignee(task, actor.ID) {
			return RuleAssignee, nil
		}
		return e.projectAdminRule(ctx, task.ProjectID, actor.ID)
	}
}

func (e *Engine) projectAdminRule(ctx context.Context, projectID, userID uint) (string, error) {
	m, member, err := e.activeMembership(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	if member && m.Role == ProjectAdmin {
		return RuleProjectAdmin, nil
	}
	return "", nil
}

// CanAssign is limited to Admin and to a ProjectManager who manages the task's
// project or holds ProjectAdmin on it.
func (e *Engine) CanAssign(ctx context.Context, actorID uint, task TaskRef) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionAssignTask, func(ctx context.Context, actor Principal) (string, error) {
		manages, err := e.managesProject(ctx, actor, task.ProjectID)
		if err != nil {
			return "", err
		}
		if manages {
			return RuleManager, nil
		}
		return e.projectAdminRule(ctx, task.ProjectID, actor.ID)
	})
}

// CanViewProject grants the manager and any active member.
func (e *Engine) CanViewProject(ctx context.Context, actorID, projectID uint) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionViewProject, func(ctx context.Context, actor Principal) (string, error) {
		manages, err := e.managesProject(ctx, actor, projectID)
		if err != nil {
			return "", err
		}
		if manages {
			return RuleManager, nil
		}
		_, member, err := e.activeMembership(ctx, projectID, actor.ID)
		if err != nil {
			return "", err
		}
		if member {
			return RuleMembership, nil
		}
		return "", nil
	})
}

// CanModifyProject grants the manager and an active ProjectAdmin.
func (e *Engine) CanModifyProject(ctx context.Context, actorID, projectID uint) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionModifyProject, func(ctx context.Context, actor Principal) (string, error) {
		manages, err := e.managesProject(ctx, actor, projectID)
		if err != nil {
			return "", err
		}
		if manages {
			return RuleManager, nil
		}
		return e.projectAdminRule(ctx, projectID, actor.ID)
	})
}

// CanCreateTask grants the manager and active ProjectAdmin or ProjectMember
// members. Viewers cannot create tasks.
func (e *Engine) CanCreateTask(ctx context.Context, actorID, projectID uint) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionCreateTask, func(ctx context.Context, actor Principal) (string, error) {
		manages, err := e.managesProject(ctx, actor, projectID)
		if err != nil {
			return "", err
		}
		if manages {
			return RuleManager, nil
		}
		m, member, err := e.activeMembership(ctx, projectID, actor.ID)
		if err != nil || !member {
			return "", err
		}
		switch m.Role {
		case ProjectAdmin:
			return RuleProjectAdmin, nil
		case ProjectMember:
			return RuleProjectMember, nil
		}
		return "", nil
	})
}

// CanCreateProject grants ProjectManager and Admin.
func (e *Engine) CanCreateProject(ctx context.Context, actorID uint) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionCreateProject, func(ctx context.Context, actor Principal) (string, error) {
		return RuleManager, nil
	})
}

// CanViewUser lets an active user see itself; anyone else needs Admin.
func (e *Engine) CanViewUser(ctx context.Context, actorID, targetID uint) outcome.Outcome[Grant] {
	return e.selfOrAdmin(ctx, actorID, targetID, ActionViewUser)
}

// CanUpdateProfile lets an active user edit itself; anyone else needs Admin.
func (e *Engine) CanUpdateProfile(ctx context.Context, actorID, targetID uint) outcome.Outcome[Grant] {
	return e.selfOrAdmin(ctx, actorID, targetID, ActionUpdateProfile)
}

func (e *Engine) selfOrAdmin(ctx context.Context, actorID, targetID uint, action Action) outcome.Outcome[Grant] {
	actor, reason, ok := e.actor(ctx, actorID)
	if !ok {
		return e.deny(action, reason)
	}
	if actor.ID == targetID {
		return e.grant(action, RuleSelf)
	}
	if actor.Role == Admin {
		return e.grant(action, RuleAdmin)
	}
	return e.deny(action, ReasonNotPermitted)
}

// CanManageUsers gates user administration that has no single target,
// such as listing users or reading the audit trail.
func (e *Engine) CanManageUsers(ctx context.Context, actorID uint) outcome.Outcome[Grant] {
	return e.decide(ctx, actorID, ActionManageUsers, nil)
}

// activeAdmin reports whether actorID is an existing, active Admin.
func (e *Engine) activeAdmin(ctx context.Context, actorID uint) (Principal, bool) {
	actor, _, ok := e.actor(ctx, actorID)
	if !ok || actor.Role != Admin {
		return Principal{}, false
	}
	return actor, true
}

// target resolves the subject of a lifecycle operation.
func (e *Engine) target(ctx context.Context, targetID uint) (Principal, bool) {
	if targetID == 0 {
		return Principal{}, false
	}
	p, found, err := e.principals.Principal(ctx, targetID)
	if err != nil {
		logger.Error().Err(err).Uint("target_id", targetID).Msg("Principal lookup failed")
		return Principal{}, false
	}
	return p, found
}

// CanCreateUser reports whether the actor may create users of any role.
func (e *Engine) CanCreateUser(ctx context.Context, actorID uint) bool {
	_, ok := e.activeAdmin(ctx, actorID)
	e.observe(ActionManageUsers, ok)
	return ok
}

// CanRegisterAs reports whether an account with the requested role may be
// created by actorID. Zero means an anonymous caller. Guest and Member are
// open to everyone; higher roles need an active Admin.
func (e *Engine) CanRegisterAs(ctx context.Context, actorID uint, requested Role) bool {
	if !requested.Valid() {
		return false
	}
	if !requested.Outranks(Member) {
		return true
	}
	if actorID == 0 {
		return false
	}
	_, ok := e.activeAdmin(ctx, actorID)
	return ok
}

// CanActivate requires an active Admin acting on another, inactive user.
func (e *Engine) CanActivate(ctx context.Context, actorID, targetID uint) bool {
	ok := e.lifecycle(ctx, actorID, targetID, func(t Principal) bool { return !t.Active })
	e.observe(ActionManageUsers, ok)
	return ok
}

// CanDeactivate requires an active Admin acting on another, active user.
func (e *Engine) CanDeactivate(ctx context.Context, actorID, targetID uint) bool {
	ok := e.lifecycle(ctx, actorID, targetID, func(t Principal) bool { return t.Active })
	e.observe(ActionManageUsers, ok)
	return ok
}

// CanHardDelete requires an active Admin acting on another existing user.
func (e *Engine) CanHardDelete(ctx context.Context, actorID, targetID uint) bool {
	ok := e.lifecycle(ctx, actorID, targetID, func(Principal) bool { return true })
	e.observe(ActionManageUsers, ok)
	return ok
}

func (e *Engine) lifecycle(ctx context.Context, actorID, targetID uint, precondition func(Principal) bool) bool {
	actor, ok := e.activeAdmin(ctx, actorID)
	if !ok || actor.ID == targetID {
		return false
	}
	target, found := e.target(ctx, targetID)
	return found && precondition(target)
}

// ResolveRoleChange returns the role that will actually be stored when actorID
// asks for targetID to hold requested.
//
// An active Admin gets the requested role for anyone but itself. A non-Admin
// may only change its own role, and the result is clamped to Member and never
// above its current role.
func (e *Engine) ResolveRoleChange(ctx context.Context, actorID, targetID uint, requested Role) outcome.Outcome[Role] {
	actor, reason, ok := e.actor(ctx, actorID)
	if !ok {
		e.observe(ActionManageUsers, false)
		return outcome.Failure[Role](reason)
	}
	if !requested.Valid() {
		requested = Guest
	}

	if actor.Role == Admin {
		if actor.ID == targetID {
			e.observe(ActionManageUsers, false)
			return outcome.Failure[Role](ReasonSelf)
		}
		if _, found := e.target(ctx, targetID); !found {
			e.observe(ActionManageUsers, false)
			return outcome.Failure[Role](ReasonNotPermitted)
		}
		e.observe(ActionManageUsers, true)
		return outcome.Success(requested)
	}

	if actor.ID != targetID {
		e.observe(ActionManageUsers, false)
		return outcome.Failure[Role](ReasonInsufficientRole)
	}

	resolved := requested
	if resolved.Outranks(Member) {
		resolved = Member
	}
	if resolved.Outranks(actor.Role) {
		resolved = actor.Role
	}
	if resolved != requested {
		return outcome.Success(resolved, "role downgraded to "+resolved.String())
	}
	return outcome.Success(resolved)
}
