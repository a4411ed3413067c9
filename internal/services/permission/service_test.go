// internal/services/permission/service_test.go
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-services/internal/common/database"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/models"
)

type fakeStore struct {
	Store

	perms      map[string][]string
	permsErr   error
	loadCalls  int
	roleUsers  map[string][]string
	granted    [][2]string
	revoked    [][2]string
	deletedRol []string
}

func newFakePermStore() *fakeStore {
	return &fakeStore{
		perms:     make(map[string][]string),
		roleUsers: make(map[string][]string),
	}
}

func (f *fakeStore) PermissionsForUser(_ context.Context, userID string) ([]string, error) {
	f.loadCalls++
	if f.permsErr != nil {
		return nil, f.permsErr
	}
	return f.perms[userID], nil
}

func (f *fakeStore) UsersWithRole(_ context.Context, roleName string) ([]string, error) {
	return f.roleUsers[roleName], nil
}

func (f *fakeStore) DeleteRole(_ context.Context, name string) error {
	f.deletedRol = append(f.deletedRol, name)
	return nil
}

func (f *fakeStore) GrantRole(_ context.Context, userID, roleName string) error {
	f.granted = append(f.granted, [2]string{userID, roleName})
	return nil
}

func (f *fakeStore) RevokeRole(_ context.Context, userID, roleName string) error {
	f.revoked = append(f.revoked, [2]string{userID, roleName})
	return nil
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })
	svc := NewService(store, client, 5*time.Minute, events.NopPublisher{}, logger.NewNoOpLogger())
	return svc, mr
}

func TestCheckAllowed(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{models.PermDocumentReview}
	svc, _ := newTestService(t, store)

	allowed, err := svc.Check(context.Background(), "user-1", models.PermDocumentReview)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.Check(context.Background(), "user-1", models.PermRoleManage)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckCachesPermissionSet(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{models.PermUserReadAny}
	svc, mr := newTestService(t, store)

	_, err := svc.Check(context.Background(), "user-1", models.PermUserReadAny)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loadCalls)

	cached, err := mr.Get("perm:set:user-1")
	require.NoError(t, err)
	var perms []string
	require.NoError(t, json.Unmarshal([]byte(cached), &perms))
	assert.Equal(t, []string{models.PermUserReadAny}, perms)

	// Second check hits the cache, not the store.
	allowed, err := svc.Check(context.Background(), "user-1", models.PermUserReadAny)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, store.loadCalls)
}

func TestCheckCacheExpiry(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{models.PermUserReadAny}
	svc, mr := newTestService(t, store)

	_, err := svc.Check(context.Background(), "user-1", models.PermUserReadAny)
	require.NoError(t, err)

	mr.FastForward(6 * time.Minute)

	_, err = svc.Check(context.Background(), "user-1", models.PermUserReadAny)
	require.NoError(t, err)
	assert.Equal(t, 2, store.loadCalls, "expired cache should reload from the store")
}

func TestCheckFailsClosed(t *testing.T) {
	store := newFakePermStore()
	store.permsErr = errors.New("connection refused")
	svc, _ := newTestService(t, store)

	allowed, err := svc.Check(context.Background(), "user-1", models.PermDocumentReview)
	require.Error(t, err)
	assert.False(t, allowed)

	std := commonerrors.AsStandardError(err)
	assert.Equal(t, commonerrors.ErrCodePermissionCheckFailed, std.Code)
	assert.True(t, std.Retryable)
}

func TestCheckSurvivesCacheOutage(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{models.PermDocumentReview}

	db, mock := redismock.NewClientMock()
	mock.ExpectGet("perm:set:user-1").SetErr(errors.New("connection reset"))
	mock.Regexp().ExpectSet("perm:set:user-1", `.*`, 5*time.Minute).SetVal("OK")

	client := &database.RedisClient{Client: db}
	svc := NewService(store, client, 5*time.Minute, events.NopPublisher{}, logger.NewNoOpLogger())

	// A broken cache degrades to the store; only a store failure denies.
	allowed, err := svc.Check(context.Background(), "user-1", models.PermDocumentReview)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, store.loadCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantInvalidatesCache(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{}
	svc, mr := newTestService(t, store)

	allowed, err := svc.Check(context.Background(), "user-1", models.PermDocumentReview)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.True(t, mr.Exists("perm:set:user-1"))

	store.perms["user-1"] = []string{models.PermDocumentReview}
	require.NoError(t, svc.Grant(context.Background(), "user-1", models.RoleReviewer))
	assert.False(t, mr.Exists("perm:set:user-1"), "grant should drop the cached set")

	allowed, err = svc.Check(context.Background(), "user-1", models.PermDocumentReview)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRevokeInvalidatesCache(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{models.PermDocumentReview}
	svc, mr := newTestService(t, store)

	_, err := svc.Check(context.Background(), "user-1", models.PermDocumentReview)
	require.NoError(t, err)
	assert.True(t, mr.Exists("perm:set:user-1"))

	require.NoError(t, svc.Revoke(context.Background(), "user-1", models.RoleReviewer))
	assert.False(t, mr.Exists("perm:set:user-1"))
}

func TestDeleteRoleFansOutInvalidation(t *testing.T) {
	store := newFakePermStore()
	store.perms["user-1"] = []string{models.PermDocumentReview}
	store.perms["user-2"] = []string{models.PermDocumentReview}
	store.roleUsers[models.RoleReviewer] = []string{"user-1", "user-2"}
	svc, mr := newTestService(t, store)

	for _, id := range []string{"user-1", "user-2"} {
		_, err := svc.Check(context.Background(), id, models.PermDocumentReview)
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteRole(context.Background(), models.RoleReviewer))
	assert.False(t, mr.Exists("perm:set:user-1"))
	assert.False(t, mr.Exists("perm:set:user-2"))
}
