// internal/common/auth/jwt.go
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"platform-services/internal/common/config"
)

// TokenKind distinguishes access from refresh tokens in the "kind" claim.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims carried by every platform token.
type Claims struct {
	UserID string    `json:"uid"`
	Email  string    `json:"email"`
	Kind   TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

// TokenManager issues and verifies HS256 tokens. Refresh tokens carry a jti
// that is tracked in Redis so they can be rotated and revoked.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	redis      *redis.Client
}

func NewTokenManager(cfg config.JWTConfig, redisClient *redis.Client) *TokenManager {
	return &TokenManager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  config.GetDuration(cfg.AccessTTL),
		refreshTTL: config.GetDuration(cfg.RefreshTTL),
		redis:      redisClient,
	}
}

func refreshKey(userID, jti string) string {
	return fmt.Sprintf("auth:refresh:%s:%s", userID, jti)
}

// IssuePair creates an access/refresh token pair and registers the refresh
// jti in Redis.
func (m *TokenManager) IssuePair(ctx context.Context, userID, email string) (*TokenPair, error) {
	now := time.Now().UTC()

	access, err := m.sign(Claims{
		UserID: userID,
		Email:  email,
		Kind:   TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			ID:        uuid.New().String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshJTI := uuid.New().String()
	refresh, err := m.sign(Claims{
		UserID: userID,
		Email:  email,
		Kind:   TokenKindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
			ID:        refreshJTI,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := m.redis.Set(ctx, refreshKey(userID, refreshJTI), "1", m.refreshTTL).Err(); err != nil {
		return nil, fmt.Errorf("register refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

func (m *TokenManager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses a token and checks signature, expiry, issuer and kind.
func (m *TokenManager) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(30*time.Second),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("unexpected token kind: %s", claims.Kind)
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token and checks its jti is still live.
// A jti that is absent means the token was rotated or revoked; the whole
// session family is revoked so a stolen old token cannot be replayed.
func (m *TokenManager) VerifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.Verify(tokenString, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	exists, err := m.redis.Exists(ctx, refreshKey(claims.UserID, claims.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh token lookup: %w", err)
	}
	if exists == 0 {
		m.RevokeAll(ctx, claims.UserID)
		return nil, fmt.Errorf("refresh token revoked")
	}
	return claims, nil
}

// Rotate revokes the presented refresh jti and issues a fresh pair.
func (m *TokenManager) Rotate(ctx context.Context, claims *Claims) (*TokenPair, error) {
	if err := m.redis.Del(ctx, refreshKey(claims.UserID, claims.ID)).Err(); err != nil {
		return nil, fmt.Errorf("revoke rotated token: %w", err)
	}
	return m.IssuePair(ctx, claims.UserID, claims.Email)
}

// Revoke invalidates a single refresh token.
func (m *TokenManager) Revoke(ctx context.Context, userID, jti string) error {
	return m.redis.Del(ctx, refreshKey(userID, jti)).Err()
}

// RevokeAll invalidates every refresh token for a user.
func (m *TokenManager) RevokeAll(ctx context.Context, userID string) {
	pattern := fmt.Sprintf("auth:refresh:%s:*", userID)
	iter := m.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		m.redis.Del(ctx, iter.Val())
	}
}
