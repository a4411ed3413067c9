// internal/services/auth/store_test.go
package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-services/internal/models"
)

func newSQLStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateUser(context.Background(), &models.User{
		ID:    "user-1",
		Email: "dup@example.com",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestGetUserByEmail(t *testing.T) {
	store, mock := newSQLStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, email, display_name, password_hash`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "display_name", "password_hash", "totp_secret", "totp_enabled", "created_at", "updated_at",
		}).AddRow("user-1", "alice@example.com", "Alice", "hash", "", false, now, now))

	user, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.False(t, user.TOTPEnabled)
}

func TestGetUserByEmailNotFound(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectQuery(`SELECT id, email, display_name, password_hash`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "display_name", "password_hash", "totp_secret", "totp_enabled", "created_at", "updated_at",
		}))

	_, err := store.GetUserByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSetTOTPUnknownUser(t *testing.T) {
	store, mock := newSQLStore(t)

	mock.ExpectExec(`UPDATE users SET totp_secret`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetTOTP(context.Background(), "missing", "secret", true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
