package models

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the persisted account record. Credential material carries `json:"-"`
// as a second line of defense; responses are built from PublicUser so secrets
// never depend on struct tags alone.
type User struct {
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	BirthDate           string     `json:"birth_date"`
	Gender              string     `json:"gender"`
	Contact             string     `json:"contact"`
	Role                Role       `json:"role"`
	HashedPassword      string     `json:"-"`
	Verified            bool       `json:"verified"`
	VerificationToken   string     `json:"-"`
	VerificationExpires *time.Time `json:"-"`
	ResetToken          string     `json:"-"`
	ResetExpires        *time.Time `json:"-"`
	LoginAttempts       int        `json:"-"`
	Locked              bool       `json:"-"`
	AllowedIPs          []string   `json:"-"`
	LastLogin           *time.Time `json:"last_login"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PublicUser is the allow-list projection of a User applied at the store-read
// boundary. Anything not listed here never leaves the service.
type PublicUser struct {
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	BirthDate string     `json:"birthDate,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	Contact   string     `json:"contact,omitempty"`
	Role      Role       `json:"role"`
	Verified  bool       `json:"verified"`
	Locked    bool       `json:"locked"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Public projects the record onto its response-safe view.
func (u *User) Public() PublicUser {
	return PublicUser{
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		BirthDate: u.BirthDate,
		Gender:    u.Gender,
		Contact:   u.Contact,
		Role:      u.Role,
		Verified:  u.Verified,
		Locked:    u.Locked,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

// ProfileUpdate carries the only fields the generic update path may touch.
// Email, password, and role changes are never accepted here.
type ProfileUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	BirthDate *string `json:"birthDate"`
	Gender    *string `json:"gender"`
	Contact   *string `json:"contact"`
}

// Empty reports whether the update would change nothing.
func (p ProfileUpdate) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.BirthDate == nil &&
		p.Gender == nil && p.Contact == nil
}

// Pagination is the envelope the dashboard's user listing depends on.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalUsers   int `json:"totalUsers"`
	UsersPerPage int `json:"usersPerPage"`
}
