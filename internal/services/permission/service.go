// internal/services/permission/service.go
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"platform-services/internal/common/database"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/metrics"
	"platform-services/internal/models"
)

const cacheKeyPrefix = "perm:set:"

type Service struct {
	store     Store
	redis     *database.RedisClient
	cacheTTL  time.Duration
	publisher events.Publisher
	logger    logger.Logger
}

func NewService(store Store, redisClient *database.RedisClient, cacheTTL time.Duration, publisher events.Publisher, log logger.Logger) *Service {
	return &Service{
		store:     store,
		redis:     redisClient,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		logger:    log,
	}
}

// Check answers whether the user holds the named permission. The user's full
// permission set goes through a read-through Redis cache; a store failure
// denies the request rather than guessing.
func (s *Service) Check(ctx context.Context, userID, permission string) (bool, error) {
	perms, err := s.permissionSet(ctx, userID)
	if err != nil {
		return false, commonerrors.NewPermissionCheckFailedError(err)
	}

	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}

	s.publisher.Emit(ctx, events.TypePermissionDenied, userID, map[string]interface{}{
		"permission": permission,
	})
	return false, nil
}

func (s *Service) permissionSet(ctx context.Context, userID string) ([]string, error) {
	key := cacheKeyPrefix + userID

	cached, err := s.redis.Get(ctx, key)
	if err == nil {
		var perms []string
		if jsonErr := json.Unmarshal([]byte(cached), &perms); jsonErr == nil {
			metrics.PermissionCacheHits.WithLabelValues("hit").Inc()
			return perms, nil
		}
		// Corrupt entry; fall through to the store.
	} else if !errors.Is(err, redis.Nil) {
		s.logger.WithError(err).Warn("permission cache read failed")
	}
	metrics.PermissionCacheHits.WithLabelValues("miss").Inc()

	perms, err := s.store.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for %s: %w", userID, err)
	}

	if data, err := json.Marshal(perms); err == nil {
		if err := s.redis.Set(ctx, key, data, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("permission cache write failed")
		}
	}
	return perms, nil
}

// Invalidate drops the cached permission sets of the given users.
func (s *Service) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cacheKeyPrefix + id
	}
	if err := s.redis.Del(ctx, keys...); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"count": len(keys),
		}).Warn("permission cache invalidation failed")
	}
}

func (s *Service) ListRoles(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, commonerrors.NewDatabaseError(err)
	}
	return roles, nil
}

func (s *Service) CreateRole(ctx context.Context, name string, permissions []string) (*models.Role, error) {
	role, err := s.store.CreateRole(ctx, name, permissions)
	if err != nil {
		if errors.Is(err, ErrDuplicateRole) {
			return nil, commonerrors.NewConflictError(fmt.Sprintf("role %q already exists", name))
		}
		return nil, commonerrors.NewDatabaseError(err)
	}
	s.logger.WithFields(map[string]interface{}{
		"role": name,
	}).Info("role created")
	return role, nil
}

// DeleteRole removes the role and invalidates every affected user's cached
// permission set.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	affected, err := s.store.UsersWithRole(ctx, name)
	if err != nil {
		return commonerrors.NewDatabaseError(err)
	}
	if err := s.store.DeleteRole(ctx, name); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return commonerrors.NewNotFoundError("role", name)
		}
		return commonerrors.NewDatabaseError(err)
	}
	s.Invalidate(ctx, affected...)
	return nil
}

func (s *Service) Grant(ctx context.Context, userID, roleName string) error {
	if err := s.store.GrantRole(ctx, userID, roleName); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return commonerrors.NewNotFoundError("role", roleName)
		}
		return commonerrors.NewDatabaseError(err)
	}
	s.Invalidate(ctx, userID)
	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"role":    roleName,
	}).Info("role granted")
	return nil
}

func (s *Service) Revoke(ctx context.Context, userID, roleName string) error {
	if err := s.store.RevokeRole(ctx, userID, roleName); err != nil {
		return commonerrors.NewDatabaseError(err)
	}
	s.Invalidate(ctx, userID)
	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"role":    roleName,
	}).Info("role revoked")
	return nil
}
