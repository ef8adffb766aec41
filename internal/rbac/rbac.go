// Package rbac maps portal roles onto the actions the community API allows.
package rbac

type Role string
type Action string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
)

const (
	ActionRead     Action = "read"
	ActionPost     Action = "post"
	ActionComment  Action = "comment"
	ActionModerate Action = "moderate"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleModerator:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionPost || action == ActionComment
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleModerator:
		return Role(role)
	default:
		return RoleMember
	}
}
