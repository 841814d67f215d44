package rbac

// Role names. They are embedded in issued tokens, so keep them stable.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

// Dispatchers may submit and cancel calls.
var Dispatchers = []string{RoleOperator}

// Readers may view calls, status and statistics.
var Readers = []string{RoleOperator, RoleViewer}
