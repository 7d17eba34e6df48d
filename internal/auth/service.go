package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yedhukrishnan/performance-backend/internal/config"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username or email already registered")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
)

// UserStore is the slice of storage the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*storage.User, error)
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, passwordHash string) error
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*uuid.UUID, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

// Tokens is what a successful login or refresh hands back to the client.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         *storage.User
}

type AuthService struct {
	storage        UserStore
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	logger         *zap.Logger
}

func NewAuthService(store UserStore, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	jwtSecret := cfg.GetJWTSecret()
	if !cfg.IsProductionReady() {
		logger.Warn("Using development JWT secret", zap.String("env", cfg.JWTSecretEnv))
	}

	return &AuthService{
		storage:        store,
		jwtHandler:     NewJWTHandler(jwtSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		passwordHasher: NewPasswordHasher(cfg.Password),
		logger:         logger.Named("auth"),
	}
}

// JWT exposes the token handler, used by the identity resolver.
func (a *AuthService) JWT() *JWTHandler {
	return a.jwtHandler
}

// Signup creates an account and logs it in.
func (a *AuthService) Signup(ctx context.Context, username, email, password string) (*Tokens, error) {
	passwordHash, err := a.passwordHasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := a.storage.CreateUser(ctx, username, email, passwordHash)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	a.logger.Info("User signed up", zap.String("user_id", user.ID.String()))
	return a.issueTokens(ctx, user)
}

// LoginUser authenticates a user and returns tokens
func (a *AuthService) LoginUser(ctx context.Context, username, password string) (*Tokens, error) {
	user, err := a.storage.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	valid, err := a.passwordHasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		a.logger.Info("Login failed", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	if err := a.storage.UpdateLastLogin(ctx, user.ID); err != nil {
		a.logger.Warn("Failed to update last login", zap.Error(err))
	}
	a.upgradeHash(ctx, user, password)

	return a.issueTokens(ctx, user)
}

// upgradeHash re-hashes a verified password when the configured argon2 cost
// has changed since it was stored.
func (a *AuthService) upgradeHash(ctx context.Context, user *storage.User, password string) {
	if !a.passwordHasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := a.passwordHasher.HashPassword(password)
	if err != nil {
		a.logger.Warn("Failed to rehash password", zap.Error(err))
		return
	}
	if err := a.storage.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		a.logger.Warn("Failed to store upgraded password hash", zap.Error(err))
	}
}

// RefreshAccessToken rotates a refresh token and issues a new access token.
func (a *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	tokenHash := hashRefreshToken(refreshToken)

	userID, err := a.storage.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	user, err := a.storage.GetUserByID(ctx, *userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	// Revoke old refresh token
	if err := a.storage.RevokeRefreshToken(ctx, tokenHash); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return a.issueTokens(ctx, user)
}

// RevokeRefreshToken revokes a refresh token
func (a *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return a.storage.RevokeRefreshToken(ctx, hashRefreshToken(refreshToken))
}

// GetUserByID retrieves a user by ID
func (a *AuthService) GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error) {
	return a.storage.GetUserByID(ctx, userID)
}

func (a *AuthService) issueTokens(ctx context.Context, user *storage.User) (*Tokens, error) {
	accessToken, err := a.jwtHandler.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := a.jwtHandler.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(a.jwtHandler.refreshTokenTTL)
	if err := a.storage.StoreRefreshToken(ctx, user.ID, hashRefreshToken(refreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    a.jwtHandler.accessTokenTTL,
		User:         user,
	}, nil
}

func hashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
