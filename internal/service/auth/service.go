package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/domain/user"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
)

// UserStore is the persistence surface the auth service needs.
type UserStore interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	InsertRefreshToken(ctx context.Context, t *repository.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) error
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
}

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Config holds token parameters.
type Config struct {
	Secret             []byte
	Issuer             string
	Audience           string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// Service issues short-lived access tokens and rotates single-use
// refresh tokens. Presenting an already-revoked refresh token revokes
// the owner's entire token family.
type Service struct {
	store  UserStore
	cfg    Config
	logger *slog.Logger
}

// NewService creates the auth service.
func NewService(store UserStore, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: store, cfg: cfg, logger: logger}
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (*user.User, error) {
	u, err := user.NewUser(email, displayName, password)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_REGISTRATION", err.Error())
	}

	if err := s.store.Create(ctx, u); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.NewValidationError("EMAIL_TAKEN", "an account with this email already exists")
		}
		return nil, errors.NewInternalError("failed to create user").WithCause(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies credentials and issues a fresh token pair with a new
// refresh family.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, *TokenPair, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, nil, errors.NewUnauthorizedError("invalid email or password")
		}
		return nil, nil, errors.NewInternalError("failed to load user").WithCause(err)
	}

	if err := u.CheckPassword(password); err != nil {
		return nil, nil, errors.NewUnauthorizedError("invalid email or password")
	}

	pair, err := s.issuePair(ctx, u, uuid.New())
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token
// is revoked; redeeming a revoked token burns the whole family.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := s.store.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewUnauthorizedError("invalid refresh token")
		}
		return nil, errors.NewInternalError("failed to load refresh token").WithCause(err)
	}

	if stored.RevokedAt != nil {
		// Token reuse: someone is replaying an already-rotated token.
		// Revoke every outstanding token in the family.
		if err := s.store.RevokeFamily(ctx, stored.FamilyID); err != nil {
			s.logger.ErrorContext(ctx, "family revocation failed",
				"family_id", stored.FamilyID, "error", err)
		}
		s.logger.WarnContext(ctx, "refresh token reuse detected",
			"user_id", stored.UserID, "family_id", stored.FamilyID)
		return nil, errors.NewUnauthorizedError("refresh token has been revoked")
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, errors.NewUnauthorizedError("refresh token has expired")
	}

	u, err := s.store.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, errors.NewUnauthorizedError("user no longer exists")
	}

	if err := s.store.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return nil, errors.NewInternalError("failed to rotate refresh token").WithCause(err)
	}

	return s.issuePair(ctx, u, stored.FamilyID)
}

// Logout revokes the presented refresh token. Unknown tokens are a
// silent success so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	stored, err := s.store.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return errors.NewInternalError("failed to load refresh token").WithCause(err)
	}
	if err := s.store.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return errors.NewInternalError("failed to revoke refresh token").WithCause(err)
	}
	return nil
}

// ValidateAccess parses and validates an access token.
func (s *Service) ValidateAccess(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Secret, nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
	)
	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewUnauthorizedError("invalid token claims")
	}
	return claims, nil
}

func (s *Service) issuePair(ctx context.Context, u *user.User, familyID uuid.UUID) (*TokenPair, error) {
	access, err := s.generateAccessToken(u)
	if err != nil {
		return nil, errors.NewInternalError("failed to sign access token").WithCause(err)
	}

	refresh, err := generateOpaqueToken()
	if err != nil {
		return nil, errors.NewInternalError("failed to generate refresh token").WithCause(err)
	}

	now := time.Now().UTC()
	if err := s.store.InsertRefreshToken(ctx, &repository.RefreshToken{
		ID:        uuid.New(),
		UserID:    u.ID,
		FamilyID:  familyID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(s.cfg.RefreshTokenExpiry),
		CreatedAt: now,
	}); err != nil {
		return nil, errors.NewInternalError("failed to store refresh token").WithCause(err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenExpiry.Seconds()),
	}, nil
}

func (s *Service) generateAccessToken(u *user.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   u.ID.String(),
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID: u.ID,
		Email:  u.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.Secret)
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
