package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/session"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// ErrNoLocalSession is returned by Unlock when this device has never signed in.
var ErrNoLocalSession = errors.New("no saved session on this device")

// AuthAPI is the part of the server API used for authentication.
type AuthAPI interface {
	Register(ctx context.Context, email, password string) (api.TokenPair, error)
	Login(ctx context.Context, email, password string) (api.TokenPair, error)
	Profile(ctx context.Context) (api.Profile, error)
}

// AuthService signs the user in and out and manages the content key.
//
// The content key is derived from the password and the email, so every device
// of the account arrives at the same key. A password-wrapped copy is stored
// locally so the key can be unlocked offline.
type AuthService struct {
	api     AuthAPI
	session *session.Session
	log     logging.Logger
}

func NewAuthService(a AuthAPI, s *session.Session, log logging.Logger) *AuthService {
	return &AuthService{api: a, session: s, log: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *AuthService) Register(ctx context.Context, email string, password []byte) error {
	email = normalizeEmail(email)
	pair, err := a.api.Register(ctx, email, string(password))
	if err != nil {
		return fmt.Errorf("register error: %w", err)
	}
	return a.start(ctx, email, password, pair)
}

func (a *AuthService) Login(ctx context.Context, email string, password []byte) error {
	email = normalizeEmail(email)
	pair, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}
	return a.start(ctx, email, password, pair)
}

// start persists a fresh session and unlocks the key.
func (a *AuthService) start(ctx context.Context, email string, password []byte, pair api.TokenPair) error {
	key := cryptox.DeriveKey(password, email)
	defer common.WipeByteArray(key)

	wrapped, err := cryptox.WrapKey(key, password)
	if err != nil {
		return fmt.Errorf("key wrapping error: %w", err)
	}

	if err := a.session.SetTokens(ctx, pair.Token, pair.RefreshToken); err != nil {
		return err
	}
	if err := a.session.SetEmail(ctx, email); err != nil {
		return err
	}
	if err := a.session.SetWrappedKey(ctx, wrapped); err != nil {
		return err
	}
	a.session.SetKey(key)

	if _, err := a.RefreshProfile(ctx); err != nil {
		a.log.Warn(ctx, "profile refresh after sign-in failed", "error", err)
	}
	a.log.Info(ctx, "signed in", "email", email)
	return nil
}

// Unlock restores the content key from the locally wrapped copy.
func (a *AuthService) Unlock(ctx context.Context, password []byte) error {
	wrapped, err := a.session.WrappedKey(ctx)
	if err != nil {
		return err
	}
	if wrapped == "" {
		return ErrNoLocalSession
	}
	key, err := cryptox.UnwrapKey(wrapped, password)
	if errors.Is(err, cryptox.ErrDecrypt) {
		return common.ErrorUnauthorized
	}
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)
	a.session.SetKey(key)
	return nil
}

// RefreshProfile fetches the account profile and caches it in the session.
func (a *AuthService) RefreshProfile(ctx context.Context) (models.Profile, error) {
	p, err := a.api.Profile(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	profile := models.Profile{
		Email:         p.Email,
		HasSyncAccess: p.HasSyncAccess,
		StorageUsed:   p.StorageUsed,
		StorageLimit:  p.StorageLimit,
	}
	if err := a.session.SetProfile(ctx, profile); err != nil {
		return models.Profile{}, err
	}
	return a.session.Profile(), nil
}

// Logout ends the session. Local records stay on the device.
func (a *AuthService) Logout(ctx context.Context) error {
	return a.session.Logout(ctx)
}
