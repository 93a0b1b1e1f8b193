// Package session owns the signed-in state of the client: the bearer and
// refresh tokens, the unwrapped content key and the cached account profile.
//
// Tokens, the wrapped key and the profile are persisted in the metadata store
// so a restart can resume the session; the unwrapped key lives only in memory
// and is wiped on logout or lock.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/common"
)

type Session struct {
	meta metadata.Repository

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	key          []byte
	profile      models.Profile

	hooksMu sync.Mutex
	hooks   []func()
}

func New(meta metadata.Repository) *Session {
	return &Session{meta: meta}
}

// Load restores tokens and the cached profile from the metadata store.
func (s *Session) Load(ctx context.Context) error {
	access, err := s.meta.GetString(ctx, metadata.KeyAccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.meta.GetString(ctx, metadata.KeyRefreshToken)
	if err != nil {
		return err
	}
	email, err := s.meta.GetString(ctx, metadata.KeyEmail)
	if err != nil {
		return err
	}
	hasAccess, err := s.meta.GetBool(ctx, metadata.KeyHasSyncAccess)
	if err != nil {
		return err
	}
	used, err := s.meta.GetInt64(ctx, metadata.KeyStorageUsed)
	if err != nil {
		return err
	}
	limit, err := s.meta.GetInt64(ctx, metadata.KeyStorageLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
	s.profile = models.Profile{Email: email, HasSyncAccess: hasAccess, StorageUsed: used, StorageLimit: limit}
	return nil
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// IsAuthenticated reports whether an access token is held.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// SetTokens replaces both tokens and persists them.
func (s *Session) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	s.accessToken = access
	s.refreshToken = refresh
	s.mu.Unlock()

	if err := s.meta.SetString(ctx, metadata.KeyAccessToken, access); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	if err := s.meta.SetString(ctx, metadata.KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return nil
}

// Key returns a copy of the content key, or nil while locked.
func (s *Session) Key() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil
	}
	return append([]byte(nil), s.key...)
}

func (s *Session) HasKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// RequireKey returns the key or common.ErrLocked.
func (s *Session) RequireKey() ([]byte, error) {
	k := s.Key()
	if k == nil {
		return nil, common.ErrLocked
	}
	return k, nil
}

// SetKey installs the unwrapped content key.
func (s *Session) SetKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		common.WipeByteArray(s.key)
	}
	s.key = append([]byte(nil), key...)
}

// Lock wipes the in-memory key but keeps the session.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		common.WipeByteArray(s.key)
		s.key = nil
	}
}

func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Email
}

// SetEmail records the account email, which also salts key derivation.
func (s *Session) SetEmail(ctx context.Context, email string) error {
	s.mu.Lock()
	s.profile.Email = email
	s.mu.Unlock()
	return s.meta.SetString(ctx, metadata.KeyEmail, email)
}

func (s *Session) WrappedKey(ctx context.Context) (string, error) {
	return s.meta.GetString(ctx, metadata.KeyWrappedKey)
}

func (s *Session) SetWrappedKey(ctx context.Context, wrapped string) error {
	return s.meta.SetString(ctx, metadata.KeyWrappedKey, wrapped)
}

func (s *Session) Profile() models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Session) HasSyncAccess() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.HasSyncAccess
}

// SetProfile caches the server profile. An empty email keeps the known one.
func (s *Session) SetProfile(ctx context.Context, p models.Profile) error {
	s.mu.Lock()
	if p.Email == "" {
		p.Email = s.profile.Email
	}
	s.profile = p
	s.mu.Unlock()

	if err := s.meta.SetBool(ctx, metadata.KeyHasSyncAccess, p.HasSyncAccess); err != nil {
		return err
	}
	if err := s.meta.SetInt64(ctx, metadata.KeyStorageUsed, p.StorageUsed); err != nil {
		return err
	}
	if err := s.meta.SetInt64(ctx, metadata.KeyStorageLimit, p.StorageLimit); err != nil {
		return err
	}
	if p.Email != "" {
		return s.meta.SetString(ctx, metadata.KeyEmail, p.Email)
	}
	return nil
}

func (s *Session) SetStorageUsed(ctx context.Context, used int64) error {
	s.mu.Lock()
	s.profile.StorageUsed = used
	s.mu.Unlock()
	return s.meta.SetInt64(ctx, metadata.KeyStorageUsed, used)
}

// OnLogout registers fn to run after every Logout.
func (s *Session) OnLogout(fn func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Logout forgets the key, the tokens and the profile, clears the persisted
// session keys and then runs the logout hooks. Local records are kept.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.key != nil {
		common.WipeByteArray(s.key)
	}
	s.key = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.profile = models.Profile{}
	s.mu.Unlock()

	err := s.meta.Delete(ctx, metadata.SessionKeys...)

	s.hooksMu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
