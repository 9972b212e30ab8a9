package entity

// Role of an authenticated caller
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the already-authenticated identity performing an operation
type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	CompanyID string `json:"company_id"`
}

// IsPrivileged is true for managers and admins
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}

// IsAdmin is true for admins only
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// InCompany reports whether the actor belongs to companyID
func (a Actor) InCompany(companyID string) bool {
	return a.CompanyID != "" && a.CompanyID == companyID
}
