// internal/services/permission/store_test.go
package permission

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestPermissionsForUser(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`SELECT DISTINCT p.name`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("document.review").
			AddRow("document.list_all"))

	perms, err := store.PermissionsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"document.review", "document.list_all"}, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionsForUserEmpty(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`SELECT DISTINCT p.name`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	perms, err := store.PermissionsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.NotNil(t, perms)
}

func TestGrantRoleUnknownRole(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs("user-1", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.GrantRole(context.Background(), "user-1", "ghost")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestUsersWithRole(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`SELECT ur.user_id FROM user_roles`).
		WithArgs("reviewer").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow("user-1").
			AddRow("user-2"))

	users, err := store.UsersWithRole(context.Background(), "reviewer")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, users)
}
