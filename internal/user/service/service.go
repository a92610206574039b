// Package service implements account operations: profile, password, deletion
// and the admin maintenance calls.
package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	"github.com/mybudgetplus/mybudget/internal/user/models"
	"github.com/mybudgetplus/mybudget/internal/user/store"
)

const (
	// DeleteConfirmation must be sent verbatim to delete an account.
	DeleteConfirmation = "DELETE"
	MinPasswordLength  = 8

	eventSource = "user-service"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// PreferencesRemover deletes the preferences owned by an account.
type PreferencesRemover interface {
	DeleteForUserTx(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error)
	Evict(ctx context.Context, userID string)
}

type Service struct {
	repo     store.Repository
	tx       TxRunner
	prefs    PreferencesRemover
	eventBus bus.EventBus
	logger   *logger.Logger
	hashCost int
}

func NewService(repo store.Repository, tx TxRunner, prefs PreferencesRemover, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		prefs:    prefs,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", eventSource)),
		hashCost: bcrypt.DefaultCost,
	}
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "failed to load user")
	}
	return user, nil
}

// UpdateProfile changes only the supplied fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.User, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperrors.ValidationError("name", "must not be empty")
		}
		update.Name = &name
	}
	if update.Email != nil {
		email, err := normalizeEmail(*update.Email)
		if err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if update.PhoneNumber != nil {
		phone := strings.TrimSpace(*update.PhoneNumber)
		update.PhoneNumber = &phone
	}

	user, err := s.repo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, mapStoreError(err, "failed to update profile")
	}
	if !update.Empty() {
		s.publish(ctx, events.ProfileUpdated, userID)
	}
	return user, nil
}

// ChangePassword verifies current against the stored hash before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return apperrors.BadRequest("currentPassword and newPassword are required")
	}
	if len(next) < MinPasswordLength {
		return apperrors.ValidationError("newPassword", "must be at least 8 characters")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return mapStoreError(err, "failed to load user")
	}
	if !checkPassword(user.PasswordHash, current) {
		return apperrors.BadRequest("incorrect password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return apperrors.InternalError("failed to hash password", err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return mapStoreError(err, "failed to update password")
	}
	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}

// DeleteAccount removes the user and their preferences in one transaction.
// The confirmation literal is checked before anything is read or written.
func (s *Service) DeleteAccount(ctx context.Context, userID, password, confirmation string) error {
	if confirmation != DeleteConfirmation {
		return apperrors.BadRequest(`confirmation must be "DELETE"`)
	}
	if password == "" {
		return apperrors.BadRequest("password is required")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return mapStoreError(err, "failed to load user")
	}
	if !checkPassword(user.PasswordHash, password) {
		return apperrors.BadRequest("incorrect password")
	}

	var removed int64
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.prefs.DeleteForUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		removed = n
		return s.repo.DeleteTx(ctx, tx, userID)
	})
	if err != nil {
		return mapStoreError(err, "failed to delete account")
	}
	s.prefs.Evict(ctx, userID)

	s.logger.Info("account deleted",
		zap.String("user_id", userID),
		zap.Int64("preferences_removed", removed))
	s.publish(ctx, events.AccountDeleted, userID)
	return nil
}

func (s *Service) SetProfilePicture(ctx context.Context, userID, path string) (*models.User, error) {
	user, err := s.repo.SetProfilePicture(ctx, userID, path)
	if err != nil {
		return nil, mapStoreError(err, "failed to save profile picture")
	}
	s.publish(ctx, events.ProfileUpdated, userID)
	return user, nil
}

// CreateUserRequest is used by the maintenance CLI.
type CreateUserRequest struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength {
		return nil, apperrors.ValidationError("password", "must be at least 8 characters")
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, apperrors.ValidationError("role", "must be user or admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, apperrors.InternalError("failed to hash password", err)
	}
	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapStoreError(err, "failed to create user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// Authenticate checks an email and password pair. Every failure reads the same.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	user, err := s.repo.GetByEmail(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to load user", err)
	}
	if !checkPassword(user.PasswordHash, password) {
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	if user.Blocked {
		return nil, apperrors.Forbidden("account is blocked")
	}
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, mapStoreError(err, "failed to load user")
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, filter models.ListFilter) ([]*models.User, error) {
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.InternalError("failed to list users", err)
	}
	return users, nil
}

// CountMatching counts the users a ListUsers call with the same search would page through.
func (s *Service) CountMatching(ctx context.Context, filter models.ListFilter) (int, error) {
	n, err := s.repo.Count(ctx, filter)
	if err != nil {
		return 0, apperrors.InternalError("failed to count users", err)
	}
	return n, nil
}

func (s *Service) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return nil, apperrors.InternalError("failed to list users", err)
	}
	return ids, nil
}

func (s *Service) SetBlocked(ctx context.Context, userID string, blocked bool) (*models.User, error) {
	user, err := s.repo.SetBlocked(ctx, userID, blocked)
	if err != nil {
		return nil, mapStoreError(err, "failed to update user")
	}
	s.logger.Info("user blocked state changed", zap.String("user_id", userID), zap.Bool("blocked", blocked))
	return user, nil
}

func (s *Service) SetRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationError("role", "must be user or admin")
	}
	user, err := s.repo.SetRole(ctx, userID, role)
	if err != nil {
		return nil, mapStoreError(err, "failed to update user")
	}
	return user, nil
}

func (s *Service) CountUsers(ctx context.Context) (models.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return models.Stats{}, apperrors.InternalError("failed to count users", err)
	}
	return stats, nil
}

func (s *Service) publish(ctx context.Context, eventType, userID string) {
	if s.eventBus == nil {
		return
	}
	data := map[string]interface{}{"user_id": userID}
	if err := s.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, eventSource, data)); err != nil {
		s.logger.Error("failed to publish user event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func checkPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.ValidationError("email", "must be a valid email address")
	}
	return email, nil
}

// mapStoreError turns store sentinels into client errors and hides the rest.
func mapStoreError(err error, internalMsg string) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFound("user")
	case errors.Is(err, store.ErrEmailTaken):
		return apperrors.Conflict("email already in use")
	default:
		return apperrors.InternalError(internalMsg, err)
	}
}
