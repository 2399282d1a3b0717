package domain

// Role enumerates the service-desk roles known to the identity subsystem.
type Role string

const (
	RoleSuperAdmin      Role = "SUPER_ADMIN"
	RoleAdmin           Role = "ADMIN"
	RoleTechnician      Role = "TECHNICIAN"
	RoleSecurityAnalyst Role = "SECURITY_ANALYST"
	RoleManager         Role = "MANAGER"
	RoleManagerIT       Role = "MANAGER_IT"
	RoleUser            Role = "USER"
	RoleAgent           Role = "AGENT"
)

// Actor is the caller of a mutation as resolved by the identity subsystem.
type Actor struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Role           Role    `json:"role"`
	BranchID       string  `json:"branchId"`
	SupportGroupID *string `json:"supportGroupId,omitempty"`
}

// User is the directory entry used to resolve notification recipients.
type User struct {
	ID             string
	Name           string
	Email          string
	Role           Role
	BranchID       string
	SupportGroupID *string
	IsActive       bool
}
