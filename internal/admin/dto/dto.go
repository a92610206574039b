package dto

import (
	"time"

	usermodels "github.com/mybudgetplus/mybudget/internal/user/models"
)

// AdminUserDTO is the account view for administrators. It includes the
// blocked flag but, like every other view, never the password hash.
type AdminUserDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      usermodels.Role `json:"role"`
	Blocked   bool            `json:"blocked"`
	CreatedAt time.Time       `json:"createdAt"`
}

type ListUsersResponse struct {
	Users  []AdminUserDTO `json:"users"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type SetBlockedRequest struct {
	Blocked *bool `json:"blocked"`
}

type StatsResponse struct {
	Users   int            `json:"users"`
	Admins  int            `json:"admins"`
	Blocked int            `json:"blocked"`
	Themes  map[string]int `json:"themes"`
}

func FromUser(u *usermodels.User) AdminUserDTO {
	return AdminUserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Blocked:   u.Blocked,
		CreatedAt: u.CreatedAt,
	}
}
