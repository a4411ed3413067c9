// internal/services/auth/service.go
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	commonauth "platform-services/internal/common/auth"
	stderrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/notify"
	"platform-services/internal/models"
)

// Service implements registration, login, token rotation and TOTP enrollment.
type Service struct {
	config    *Config
	store     Store
	tokens    *commonauth.TokenManager
	redis     *redis.Client
	publisher events.Publisher
	notifier  *notify.Notifier
	logger    logger.Logger
}

func NewService(
	config *Config,
	store Store,
	tokens *commonauth.TokenManager,
	redisClient *redis.Client,
	publisher events.Publisher,
	notifier *notify.Notifier,
	log logger.Logger,
) *Service {
	return &Service{
		config:    config,
		store:     store,
		tokens:    tokens,
		redis:     redisClient,
		publisher: publisher,
		notifier:  notifier,
		logger:    log.WithFields(map[string]interface{}{"service": "auth"}),
	}
}

func (s *Service) Register(ctx context.Context, input *RegisterInput) (*models.Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.config.BcryptCost)
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		DisplayName:  input.DisplayName,
		PasswordHash: string(hash),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, stderrors.NewEmailTakenError(input.Email)
		}
		return nil, stderrors.NewDatabaseError(err)
	}

	s.publisher.Emit(ctx, events.TypeUserRegistered, user.ID, map[string]interface{}{
		"email": user.Email,
	})

	if s.notifier != nil {
		s.notifier.SendEmail(ctx, user.Email, "Welcome",
			fmt.Sprintf("Hi %s, your account is ready.", user.DisplayName))
	}

	s.logger.Info("user registered", map[string]interface{}{"userId": user.ID})

	profile := user.Profile()
	return &profile, nil
}

func (s *Service) Login(ctx context.Context, input *LoginInput) (*commonauth.TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a comparison so a missing user takes as long as a bad
			// password.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$12$C6UzMDM.H6dfI/f/IKcEeO5rzrzsnMqfFjnnzLxoIhJkiAh3ucmCa"),
				[]byte(input.Password))
			return nil, stderrors.NewInvalidCredentialsError()
		}
		return nil, stderrors.NewDatabaseError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, stderrors.NewInvalidCredentialsError()
	}

	if user.TOTPEnabled {
		if input.TOTPCode == "" {
			return nil, &stderrors.StandardError{
				Code:    stderrors.ErrCodeTOTPRequired,
				Message: "TOTP code required",
			}
		}
		if !totp.Validate(input.TOTPCode, user.TOTPSecret) {
			return nil, &stderrors.StandardError{
				Code:    stderrors.ErrCodeTOTPInvalid,
				Message: "TOTP code invalid",
			}
		}
	}

	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email)
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}

	s.logger.Info("user logged in", map[string]interface{}{"userId": user.ID})
	return pair, nil
}

func (s *Service) Refresh(ctx context.Context, input *RefreshInput) (*commonauth.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(ctx, input.RefreshToken)
	if err != nil {
		return nil, stderrors.NewTokenRevokedError()
	}

	pair, err := s.tokens.Rotate(ctx, claims)
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}
	return pair, nil
}

func (s *Service) Logout(ctx context.Context, input *LogoutInput) error {
	claims, err := s.tokens.Verify(input.RefreshToken, commonauth.TokenKindRefresh)
	if err != nil {
		// Already invalid; logout is idempotent.
		return nil
	}
	return s.tokens.Revoke(ctx, claims.UserID, claims.ID)
}

func enrollKey(userID string) string {
	return "auth:totp_enroll:" + userID
}

// EnrollTOTP generates a secret and parks it in Redis until the user proves
// possession with one valid code. The account flag flips only in VerifyTOTP.
func (s *Service) EnrollTOTP(ctx context.Context, userID string) (*EnrollTOTPOutput, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, stderrors.NewNotFoundError("user", userID)
		}
		return nil, stderrors.NewDatabaseError(err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.TOTPIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, stderrors.NewInternalError(err)
	}

	if err := s.redis.Set(ctx, enrollKey(userID), key.Secret(), s.config.TOTPEnrollTTL).Err(); err != nil {
		return nil, stderrors.NewInternalError(err)
	}

	return &EnrollTOTPOutput{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
	}, nil
}

func (s *Service) VerifyTOTP(ctx context.Context, userID string, input *VerifyTOTPInput) error {
	secret, err := s.redis.Get(ctx, enrollKey(userID)).Result()
	if err != nil {
		return &stderrors.StandardError{
			Code:    stderrors.ErrCodeTOTPInvalid,
			Message: "No TOTP enrollment in progress",
		}
	}

	if !totp.Validate(input.Code, secret) {
		return &stderrors.StandardError{
			Code:    stderrors.ErrCodeTOTPInvalid,
			Message: "TOTP code invalid",
		}
	}

	if err := s.store.SetTOTP(ctx, userID, secret, true); err != nil {
		return stderrors.NewDatabaseError(err)
	}

	s.redis.Del(ctx, enrollKey(userID))
	s.logger.Info("totp enabled", map[string]interface{}{"userId": userID})
	return nil
}
