package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an account. PasswordHash never leaves the server.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	Blocked        bool      `json:"blocked"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	PhoneNumber    string    `json:"phoneNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// ProfileUpdate lists the editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Name        *string
	Email       *string
	PhoneNumber *string
}

func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil && p.PhoneNumber == nil
}

// ListFilter pages through accounts for the admin views.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// Stats summarises the account table.
type Stats struct {
	Users   int `json:"users"`
	Admins  int `json:"admins"`
	Blocked int `json:"blocked"`
}
