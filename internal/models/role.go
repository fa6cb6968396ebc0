package models

import "fmt"

// Role is an access-control role an address may hold.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleAuditor}

// ParseRole converts a role tag into a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
