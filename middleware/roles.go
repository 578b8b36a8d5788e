package middleware

// Role is a platform account role. Roles are ranked; a higher role may do
// everything a lower one may.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleOperator   Role = "operator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// NormalizeRole validates a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleCustomer, RoleOperator, RoleAdmin, RoleSuperAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies the required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

// CanGrant reports whether an account with role may hand out target, either
// by invitation or by changing another account's role. Only super admins
// create other super admins.
func CanGrant(role Role, target Role) bool {
	if role == RoleSuperAdmin {
		return true
	}
	return RoleAtLeast(role, RoleAdmin) && roleRank(target) < roleRank(RoleSuperAdmin)
}

func roleRank(role Role) int {
	switch role {
	case RoleCustomer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	case RoleSuperAdmin:
		return 4
	default:
		return 0
	}
}
