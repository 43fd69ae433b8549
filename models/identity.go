package models

import "strings"

// Role is the account role handed to the chat core by the authentication layer
type Role string

// Roles known to the chat core. TECHNICIAN and other back-office roles are
// treated as customers would be: they get the single conversation mode.
const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole normalizes role spellings such as "staff" or "ROLE_ADMIN"
func ParseRole(s string) Role {
	r := strings.ToUpper(strings.TrimSpace(s))
	r = strings.TrimPrefix(r, "ROLE_")
	if r == "" {
		return RoleCustomer
	}
	return Role(r)
}

// IsStaff reports whether the role works the multi-conversation inbox
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Identity is the authenticated account using the chat
type Identity struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name,omitempty"`
	Role      Role   `json:"role"`
}
