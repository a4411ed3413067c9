// internal/services/user/service.go
package user

import (
	"context"
	"errors"

	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
	"platform-services/internal/models"
)

// PermissionChecker answers whether a user holds a named permission. The
// concrete implementation lives in the permission service; the indirection
// keeps this package free of a dependency on its internals.
type PermissionChecker interface {
	Check(ctx context.Context, userID, permission string) (bool, error)
}

type Service struct {
	store  Store
	perms  PermissionChecker
	logger logger.Logger
}

func NewService(store Store, perms PermissionChecker, log logger.Logger) *Service {
	return &Service{
		store:  store,
		perms:  perms,
		logger: log,
	}
}

// GetSelf returns the caller's own profile.
func (s *Service) GetSelf(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewNotFoundError("user", userID)
		}
		return nil, commonerrors.NewDatabaseError(err)
	}
	profile := user.Profile()
	return &profile, nil
}

// GetByID returns another user's profile. The caller must hold the
// user:read_any permission; ordinary users can only read themselves.
func (s *Service) GetByID(ctx context.Context, callerID, targetID string) (*models.Profile, error) {
	if callerID != targetID {
		allowed, err := s.perms.Check(ctx, callerID, models.PermUserReadAny)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, commonerrors.NewPermissionDeniedError(models.PermUserReadAny)
		}
	}

	user, err := s.store.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewNotFoundError("user", targetID)
		}
		return nil, commonerrors.NewDatabaseError(err)
	}
	profile := user.Profile()
	return &profile, nil
}

// UpdateSelf updates the caller's mutable profile fields.
func (s *Service) UpdateSelf(ctx context.Context, userID, displayName string) (*models.Profile, error) {
	user, err := s.store.UpdateProfile(ctx, userID, displayName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, commonerrors.NewNotFoundError("user", userID)
		}
		return nil, commonerrors.NewDatabaseError(err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
	}).Info("user profile updated")

	profile := user.Profile()
	return &profile, nil
}

// DeleteSelf soft-deletes the caller's account. Deleting twice returns a
// not-found error because the first delete hides the row.
func (s *Service) DeleteSelf(ctx context.Context, userID string) error {
	if err := s.store.SoftDelete(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return commonerrors.NewNotFoundError("user", userID)
		}
		return commonerrors.NewDatabaseError(err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
	}).Info("user account deleted")

	return nil
}
