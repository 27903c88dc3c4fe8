package model

// User roles
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User represents an account that can sign in.
type User struct {
	Base
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	FullName     string `json:"full_name" db:"full_name"`
	Role         string `json:"role" db:"role"`
}

// IsStaff reports whether the user may act on any patient.
func (u *User) IsStaff() bool {
	return u.Role == RoleDoctor || u.Role == RoleAdmin
}
