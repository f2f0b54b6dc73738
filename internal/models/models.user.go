// FilePath: internal/models/models.user.go
package models

import "time"

// Role names known to the platform. Roles live in the user_roles join
// table; anything outside these two is passed through untouched.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// User carries credentials, role memberships and company assignments.
// Company assignment is many-to-many (user_companies join table); roles
// come from user_roles. The readxs tags drive role-scoped field filtering
// when a user record leaves the service layer.
type User struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email" readxs:"admin,self,system"`
	PasswordHash string     `json:"-" db:"password_hash" readxs:"system" writexs:"system"`
	FullName     string     `json:"full_name" db:"full_name"`
	Phone        string     `json:"phone" db:"phone" readxs:"admin,self,system" writexs:"admin,self,system"`
	Active       bool       `json:"active" db:"active"`
	LastLoginAt  *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`

	// Loaded from join tables, not user columns.
	Roles      []string `json:"roles" db:"-" readxs:"admin,self,system"`
	CompanyIDs []int64  `json:"company_ids" db:"-" readxs:"admin,self,system"`
}

// IsAdmin reports whether the user holds the Admin role.
func (u *User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}
