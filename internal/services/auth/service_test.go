// internal/services/auth/service_test.go
package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	commonauth "platform-services/internal/common/auth"
	"platform-services/internal/common/config"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/models"
)

type memStore struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func newMemStore() *memStore {
	return &memStore{
		byEmail: make(map[string]*models.User),
		byID:    make(map[string]*models.User),
	}
}

func (s *memStore) CreateUser(_ context.Context, user *models.User) error {
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrDuplicateEmail
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) SetTOTP(_ context.Context, userID, secret string, enabled bool) error {
	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.TOTPSecret = secret
	user.TOTPEnabled = enabled
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	tokens := commonauth.NewTokenManager(config.JWTConfig{
		Secret:     "test-secret",
		Issuer:     "platform-test",
		AccessTTL:  int(15 * time.Minute / time.Millisecond),
		RefreshTTL: int(24 * time.Hour / time.Millisecond),
	}, rdb)

	store := newMemStore()
	svc := NewService(
		&Config{BcryptCost: bcrypt.MinCost, TOTPIssuer: "platform-test", TOTPEnrollTTL: 10 * time.Minute},
		store,
		tokens,
		rdb,
		events.NopPublisher{},
		nil,
		logger.NewNoOpLogger(),
	)
	return svc, store, mr
}

func registerUser(t *testing.T, svc *Service, email, password string) *models.Profile {
	t.Helper()
	profile, err := svc.Register(context.Background(), &RegisterInput{
		Email:       email,
		Password:    password,
		DisplayName: "Test User",
	})
	require.NoError(t, err)
	return profile
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	registerUser(t, svc, "dup@example.com", "hunter22")

	_, err := svc.Register(context.Background(), &RegisterInput{
		Email:       "dup@example.com",
		Password:    "hunter22",
		DisplayName: "Second",
	})
	require.Error(t, err)
	stdErr := commonerrors.AsStandardError(err)
	assert.Equal(t, commonerrors.ErrCodeEmailTaken, stdErr.Code)
}

func TestLoginUniformFailure(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerUser(t, svc, "alice@example.com", "correct-horse")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "correct-horse"},
		{"wrong password", "alice@example.com", "wrong-horse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), &LoginInput{Email: tt.email, Password: tt.password})
			require.Error(t, err)
			stdErr := commonerrors.AsStandardError(err)
			assert.Equal(t, commonerrors.ErrCodeInvalidCredentials, stdErr.Code)
		})
	}
}

func TestLoginIssuesPair(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerUser(t, svc, "bob@example.com", "secret99")

	pair, err := svc.Login(context.Background(), &LoginInput{Email: "bob@example.com", Password: "secret99"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(15*60), pair.ExpiresIn)
}

func TestLoginRequiresTOTPWhenEnabled(t *testing.T) {
	svc, store, _ := newTestService(t)
	profile := registerUser(t, svc, "carol@example.com", "secret99")

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "platform-test", AccountName: "carol@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.SetTOTP(context.Background(), profile.ID, key.Secret(), true))

	_, err = svc.Login(context.Background(), &LoginInput{Email: "carol@example.com", Password: "secret99"})
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeTOTPRequired, commonerrors.AsStandardError(err).Code)

	_, err = svc.Login(context.Background(), &LoginInput{
		Email:    "carol@example.com",
		Password: "secret99",
		TOTPCode: "000000",
	})
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeTOTPInvalid, commonerrors.AsStandardError(err).Code)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	pair, err := svc.Login(context.Background(), &LoginInput{
		Email:    "carol@example.com",
		Password: "secret99",
		TOTPCode: code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerUser(t, svc, "dave@example.com", "secret99")

	pair, err := svc.Login(context.Background(), &LoginInput{Email: "dave@example.com", Password: "secret99"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), &RefreshInput{RefreshToken: pair.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old refresh token was consumed by the rotation. Replaying it must
	// fail and revoke the whole session family, so the rotated token dies too.
	_, err = svc.Refresh(context.Background(), &RefreshInput{RefreshToken: pair.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeTokenRevoked, commonerrors.AsStandardError(err).Code)

	_, err = svc.Refresh(context.Background(), &RefreshInput{RefreshToken: rotated.RefreshToken})
	require.Error(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerUser(t, svc, "erin@example.com", "secret99")

	pair, err := svc.Login(context.Background(), &LoginInput{Email: "erin@example.com", Password: "secret99"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), &LogoutInput{RefreshToken: pair.RefreshToken}))

	_, err = svc.Refresh(context.Background(), &RefreshInput{RefreshToken: pair.RefreshToken})
	require.Error(t, err)

	// Second logout with the now-dead token still succeeds.
	require.NoError(t, svc.Logout(context.Background(), &LogoutInput{RefreshToken: pair.RefreshToken}))
	require.NoError(t, svc.Logout(context.Background(), &LogoutInput{RefreshToken: "garbage"}))
}

func TestEnrollAndVerifyTOTP(t *testing.T) {
	svc, store, mr := newTestService(t)
	profile := registerUser(t, svc, "frank@example.com", "secret99")

	out, err := svc.EnrollTOTP(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Secret)
	assert.Contains(t, out.OTPAuthURL, "otpauth://")

	// Flag stays off until the code is proven.
	user, err := store.GetUserByID(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.False(t, user.TOTPEnabled)

	err = svc.VerifyTOTP(context.Background(), profile.ID, &VerifyTOTPInput{Code: "000000"})
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeTOTPInvalid, commonerrors.AsStandardError(err).Code)

	code, err := totp.GenerateCode(out.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyTOTP(context.Background(), profile.ID, &VerifyTOTPInput{Code: code}))

	user, err = store.GetUserByID(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.True(t, user.TOTPEnabled)
	assert.Equal(t, out.Secret, user.TOTPSecret)

	// Parked secret is consumed; a second verify has nothing to work with.
	assert.False(t, mr.Exists("auth:totp_enroll:"+profile.ID))
	err = svc.VerifyTOTP(context.Background(), profile.ID, &VerifyTOTPInput{Code: code})
	require.Error(t, err)
}

func TestEnrollTOTPUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.EnrollTOTP(context.Background(), "missing-user")
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeNotFound, commonerrors.AsStandardError(err).Code)
}
