package models

// Roles understood by the authorization layer.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an authenticated customer or administrator.
type User struct {
	BaseModel
	Email        string  `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Phone        string  `json:"phone"`
	Address      string  `json:"address"`
	Role         string  `gorm:"size:16;not null;default:user;index" json:"role"`
	Orders       []Order `json:"orders,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
