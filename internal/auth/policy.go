package auth

import (
	"strings"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
)

// NormalizeRole maps a claim value onto a known role. Anything unrecognised
// is treated as an attendee.
func NormalizeRole(role string) model.Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(model.RoleAdmin):
		return model.RoleAdmin
	default:
		return model.RoleAttendee
	}
}

// Action is an operation subject to authorization.
type Action int

const (
	ActionRegister Action = iota
	ActionListAll
	ActionReadUser
	ActionCancel
	ActionManageEvents
)

func (a Action) String() string {
	switch a {
	case ActionRegister:
		return "register"
	case ActionListAll:
		return "list_all"
	case ActionReadUser:
		return "read_user"
	case ActionCancel:
		return "cancel"
	case ActionManageEvents:
		return "manage_events"
	default:
		return "unknown"
	}
}

// Authorize is the single policy decision point. ownerID is the user whose
// registrations the action touches; it is ignored by actions without one.
//
//	register       any authenticated caller
//	list_all       admin
//	read_user      owner or admin
//	cancel         owner only, admins included
//	manage_events  admin
func Authorize(id *model.Identity, action Action, ownerID string) error {
	if id == nil || id.UserID == "" {
		return model.ErrAuthRequired
	}

	switch action {
	case ActionRegister:
		return nil
	case ActionListAll, ActionManageEvents:
		if id.IsAdmin() {
			return nil
		}
		return model.ErrForbidden
	case ActionReadUser:
		if id.UserID == ownerID || id.IsAdmin() {
			return nil
		}
		return model.ErrForbidden
	case ActionCancel:
		if id.UserID == ownerID {
			return nil
		}
		return model.ErrNotOwner
	default:
		return model.ErrForbidden
	}
}
