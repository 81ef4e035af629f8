package enums

import "fmt"

// Role is the actor role carried in an access token.
type Role string

const (
	RoleClinicOwner  Role = "clinic_owner"
	RoleClinicMember Role = "clinic_member"
	RoleAdmin        Role = "admin"
)

var validRoles = []Role{
	RoleClinicOwner,
	RoleClinicMember,
	RoleAdmin,
}

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
