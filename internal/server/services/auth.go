package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// AuthService registers accounts, issues token pairs and rotates refresh tokens.
type AuthService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	defaultStorageLimit          int64
	bcryptCost                   int
	now                          func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		defaultStorageLimit:          cfg.DefaultStorageLimit,
		bcryptCost:                   bcrypt.DefaultCost,
		now:                          time.Now,
	}
}

// Register creates an account for email and signs it in. A taken email
// yields common.ErrorAlreadyExists.
func (s *AuthService) Register(ctx context.Context, email, password string) (*api.TokenPair, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:         email,
		PasswordHash:  string(hash),
		HasSyncAccess: true,
		StorageLimit:  s.defaultStorageLimit,
	}

	user, err = s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return s.generateTokenPair(ctx, s.db, user.ID)
}

// Login checks the password of email. Unknown accounts and wrong passwords
// both yield common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*api.TokenPair, error) {
	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrorUnauthorized
	}

	return s.generateTokenPair(ctx, s.db, user.ID)
}

// RefreshToken exchanges refreshToken for a new pair. The presented token
// is consumed: a second exchange of the same token fails with
// common.ErrorUnauthorized.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*api.TokenPair, error) {
	tokenHash := hashToken(refreshToken)

	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if token.Expires.Before(s.now()) {
		_ = s.repomanager.RefreshTokens(s.db).Delete(ctx, tokenHash)
		return nil, common.ErrRefreshTokenExpired
	}

	return dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*api.TokenPair, error) {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, tokenHash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrorUnauthorized
			}
			return nil, fmt.Errorf("error deleting refresh token: %w", err)
		}

		pair, err := s.generateTokenPair(ctx, tx, token.UserID)
		if err != nil {
			return nil, fmt.Errorf("error generating token pair: %w", err)
		}
		return pair, nil
	})
}

// Profile reports the entitlement and storage usage of userID.
func (s *AuthService) Profile(ctx context.Context, userID string) (*api.Profile, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	stats, err := repo.StorageStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading storage stats: %w", err)
	}

	return &api.Profile{
		Email:         user.Email,
		HasSyncAccess: user.HasSyncAccess,
		StorageUsed:   stats.Used,
		StorageLimit:  stats.Limit,
	}, nil
}

// Authenticate verifies an access token and returns its user id.
func (s *AuthService) Authenticate(accessToken string) (string, error) {
	return auth.GetUserIDFromToken(accessToken, s.jwtSecret)
}

// PurgeExpiredTokens drops refresh tokens that can no longer be exchanged.
func (s *AuthService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
}

func (s *AuthService) generateTokenPair(ctx context.Context, db dbx.DBTX, userID string) (*api.TokenPair, error) {
	accessToken, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}

	expires := s.now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(db).Create(ctx, userID, hashToken(refreshToken), expires); err != nil {
		return nil, common.ErrorInternal
	}

	return &api.TokenPair{Token: accessToken, RefreshToken: refreshToken}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
