// Package controller implements the settings operations on behalf of the
// authenticated caller: preferences, password, profile, deletion, export and
// profile picture.
package controller

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/common/tracing"
	prefmodels "github.com/mybudgetplus/mybudget/internal/preferences/models"
	"github.com/mybudgetplus/mybudget/internal/settings/dto"
	usermodels "github.com/mybudgetplus/mybudget/internal/user/models"
)

const tracerName = "settings"

// AccountService is the part of the user service the settings screens use.
type AccountService interface {
	GetProfile(ctx context.Context, userID string) (*usermodels.User, error)
	UpdateProfile(ctx context.Context, userID string, update usermodels.ProfileUpdate) (*usermodels.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	DeleteAccount(ctx context.Context, userID, password, confirmation string) error
	SetProfilePicture(ctx context.Context, userID, path string) (*usermodels.User, error)
}

// PreferencesService is the part of the preferences service the settings screens use.
type PreferencesService interface {
	GetOrCreatePreferences(ctx context.Context, userID string) (*prefmodels.UserPreferences, error)
	UpdateFromBody(ctx context.Context, userID string, body map[string]json.RawMessage) (*prefmodels.UserPreferences, error)
}

type Controller struct {
	users    AccountService
	prefs    PreferencesService
	pictures *PictureStore
	logger   *logger.Logger
	now      func() time.Time
}

func NewController(users AccountService, prefs PreferencesService, pictures *PictureStore, log *logger.Logger) *Controller {
	return &Controller{
		users:    users,
		prefs:    prefs,
		pictures: pictures,
		logger:   log.WithFields(zap.String("component", "settings-controller")),
		now:      time.Now,
	}
}

func (c *Controller) GetUser(ctx context.Context, userID string) (dto.UserDTO, error) {
	user, err := c.users.GetProfile(ctx, userID)
	if err != nil {
		return dto.UserDTO{}, err
	}
	return dto.FromUser(user), nil
}

func (c *Controller) GetPreferences(ctx context.Context, userID string) (dto.PreferencesDTO, error) {
	prefs, err := c.prefs.GetOrCreatePreferences(ctx, userID)
	if err != nil {
		return dto.PreferencesDTO{}, err
	}
	return dto.FromPreferences(prefs), nil
}

// UpdatePreferences applies every category present in body and returns the
// document as stored afterwards.
func (c *Controller) UpdatePreferences(ctx context.Context, userID string, body map[string]json.RawMessage) (result dto.PreferencesDTO, err error) {
	ctx, span := tracing.StartOperation(ctx, tracerName, "update_preferences", userID)
	defer func() { tracing.EndOperation(span, err) }()

	prefs, err := c.prefs.UpdateFromBody(ctx, userID, body)
	if err != nil {
		return dto.PreferencesDTO{}, err
	}
	return dto.FromPreferences(prefs), nil
}

func (c *Controller) ChangePassword(ctx context.Context, userID string, req dto.ChangePasswordRequest) (dto.MessageResponse, error) {
	if err := c.users.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		return dto.MessageResponse{}, err
	}
	return dto.MessageResponse{Message: "Password changed successfully"}, nil
}

func (c *Controller) UpdateProfile(ctx context.Context, userID string, req dto.UpdateProfileRequest) (dto.ProfileResponse, error) {
	user, err := c.users.UpdateProfile(ctx, userID, req.ToProfileUpdate())
	if err != nil {
		return dto.ProfileResponse{}, err
	}
	return dto.ProfileResponse{Message: "Profile updated successfully", User: dto.FromUser(user)}, nil
}

func (c *Controller) DeleteAccount(ctx context.Context, userID string, req dto.DeleteAccountRequest) (resp dto.MessageResponse, err error) {
	ctx, span := tracing.StartOperation(ctx, tracerName, "delete_account", userID)
	defer func() { tracing.EndOperation(span, err) }()

	if err := c.users.DeleteAccount(ctx, userID, req.Password, req.Confirmation); err != nil {
		return dto.MessageResponse{}, err
	}
	c.pictures.RemoveUser(userID)
	return dto.MessageResponse{Message: "Account deleted successfully"}, nil
}

// Export gathers the caller's account and preferences into one snapshot.
func (c *Controller) Export(ctx context.Context, userID string) (dto.Export, error) {
	user, err := c.users.GetProfile(ctx, userID)
	if err != nil {
		return dto.Export{}, err
	}
	prefs, err := c.prefs.GetOrCreatePreferences(ctx, userID)
	if err != nil {
		return dto.Export{}, err
	}
	return dto.NewExport(user, prefs, c.now()), nil
}

// UploadProfilePicture stores file and records its public path on the account.
// The stored file is removed again if the account cannot be updated; on
// success the previous picture is removed.
func (c *Controller) UploadProfilePicture(ctx context.Context, userID string, file *multipart.FileHeader) (dto.ProfilePictureResponse, error) {
	if file == nil {
		return dto.ProfilePictureResponse{}, apperrors.BadRequest("no file provided")
	}
	current, err := c.users.GetProfile(ctx, userID)
	if err != nil {
		return dto.ProfilePictureResponse{}, err
	}
	publicPath, err := c.pictures.Save(userID, file)
	if err != nil {
		return dto.ProfilePictureResponse{}, err
	}
	user, err := c.users.SetProfilePicture(ctx, userID, publicPath)
	if err != nil {
		c.pictures.Remove(publicPath)
		return dto.ProfilePictureResponse{}, err
	}
	if current.ProfilePicture != "" && current.ProfilePicture != publicPath {
		c.pictures.Remove(current.ProfilePicture)
	}
	c.logger.Info("profile picture updated",
		zap.String("user_id", userID),
		zap.String("path", publicPath))
	return dto.ProfilePictureResponse{
		Message:        "Profile picture updated successfully",
		ProfilePicture: publicPath,
		User:           dto.FromUser(user),
	}, nil
}
