package rbac

// Role is a closed set of actor roles. Keep these stable; they are part of auth/RBAC contracts
// and are persisted in survey audit trails.
type Role string

const (
	RoleLeadManager Role = "lead_manager"
	RoleCoE         Role = "coe"
	RoleCustomer    Role = "customer"
	RoleSystem      Role = "system" // hidden role, never issued in tokens
)

// ParseRole returns the role named by s, or false for anything outside the closed set.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleLeadManager, RoleCoE, RoleCustomer, RoleSystem:
		return r, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string { return string(r) }

func IsHiddenRole(r Role) bool { return r == RoleSystem }

// Assignable reports whether r may be carried by an issued token.
func Assignable(r Role) bool { return r.Valid() && !IsHiddenRole(r) }
