package auth

// Role represents a user role.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleInvestor Role = "investor"
	RoleOperator Role = "operator"
	RolePlatform Role = "platform"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleInvestor, RoleOperator, RolePlatform:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleInvestor:
		return 2
	case RoleOperator:
		return 3
	case RolePlatform:
		return 4
	default:
		return 0
	}
}
