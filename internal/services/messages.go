package services

// User-facing failure messages shared by the services. None of them reveal
// whether the target exists.
const (
	MsgInvalidCredentials = "invalid credentials"
	MsgInvalidSession     = "invalid or expired session"
	MsgNotFound           = "not found or access denied"
	MsgForbidden          = "access denied"
	MsgUserExists         = "username or email already in use"
	MsgInvalidRefresh     = "invalid refresh token"
	MsgRegistrationClosed = "registration is disabled"
	MsgInactiveTarget     = "target user is inactive or unknown"
	MsgInactiveProject    = "project is inactive"
	MsgManagesProjects    = "user still manages projects"
	MsgPasswordMismatch   = "incorrect old password"
	MsgExternalAccount    = "password is managed by the directory server"
	MsgNoChanges          = "no fields to update"
	MsgInvalidManager     = "manager must be an active project manager or admin"
	MsgInactiveTask       = "task is inactive"
	MsgPasswordTooLong    = "password must be at most 72 bytes"
	MsgManagerMembership  = "cannot change the project manager's membership"
)
