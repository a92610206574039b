// Package dto holds the request and response shapes of the settings API.
package dto

import (
	"time"

	prefmodels "github.com/mybudgetplus/mybudget/internal/preferences/models"
	usermodels "github.com/mybudgetplus/mybudget/internal/user/models"
)

// ExportVersion tags the layout of exported data.
const ExportVersion = "1.0"

type UserDTO struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Role           usermodels.Role `json:"role"`
	ProfilePicture string          `json:"profilePicture,omitempty"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// PreferencesDTO flattens the four categories to the top level, the layout
// clients send back in update requests.
type PreferencesDTO struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"userId"`
	Appearance    prefmodels.Appearance    `json:"appearance"`
	Notifications prefmodels.Notifications `json:"notifications"`
	Security      prefmodels.Security      `json:"security"`
	Data          prefmodels.Data          `json:"data"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type UpdateProfileRequest struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}

type DeleteAccountRequest struct {
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ProfileResponse struct {
	Message string  `json:"message"`
	User    UserDTO `json:"user"`
}

type ProfilePictureResponse struct {
	Message        string  `json:"message"`
	ProfilePicture string  `json:"profilePicture"`
	User           UserDTO `json:"user"`
}

// Export is the downloadable snapshot of everything stored about a user.
type Export struct {
	User        UserDTO        `json:"user"`
	Preferences PreferencesDTO `json:"preferences"`
	ExportDate  string         `json:"exportDate"`
	Version     string         `json:"version"`
}

func FromUser(u *usermodels.User) UserDTO {
	return UserDTO{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
		PhoneNumber:    u.PhoneNumber,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func FromPreferences(p *prefmodels.UserPreferences) PreferencesDTO {
	return PreferencesDTO{
		ID:            p.ID,
		UserID:        p.UserID,
		Appearance:    p.Document.Appearance,
		Notifications: p.Document.Notifications,
		Security:      p.Document.Security,
		Data:          p.Document.Data,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// NewExport builds the export snapshot taken at now.
func NewExport(u *usermodels.User, p *prefmodels.UserPreferences, now time.Time) Export {
	return Export{
		User:        FromUser(u),
		Preferences: FromPreferences(p),
		ExportDate:  now.UTC().Format(time.RFC3339),
		Version:     ExportVersion,
	}
}

// ToProfileUpdate drops nothing: nil fields stay unchanged downstream.
func (r UpdateProfileRequest) ToProfileUpdate() usermodels.ProfileUpdate {
	return usermodels.ProfileUpdate{
		Name:        r.Name,
		Email:       r.Email,
		PhoneNumber: r.PhoneNumber,
	}
}
