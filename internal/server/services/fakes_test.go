package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/files"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/records"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// --- users ---

type fakeUsersRepo struct {
	users   map[string]*models.User
	stats   map[string]*models.StorageStats
	created []*models.User
	err     error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{users: map[string]*models.User{}, stats: map[string]*models.StorageStats{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.ID = "u-" + u.Email
	f.users[cp.ID] = &cp
	f.created = append(f.created, &cp)
	return &cp, nil
}

func (f *fakeUsersRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) StorageStats(_ context.Context, id string) (*models.StorageStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.stats[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	tokens    map[string]*models.RefreshToken
	createErr error
	purged    time.Time
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, tokenHash string, expires time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[tokenHash] = &models.RefreshToken{UserID: userID, TokenHash: tokenHash, Expires: expires}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	t, ok := f.tokens[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, tokenHash string) error {
	if _, ok := f.tokens[tokenHash]; !ok {
		return common.ErrorNotFound
	}
	delete(f.tokens, tokenHash)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.purged = now
	var n int64
	for k, t := range f.tokens {
		if t.Expires.Before(now) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

// --- records ---

type fakeRecordsRepo struct {
	saved     []*api.SyncPayload
	saveErr   error
	pullOut   *api.SyncPayload
	pullErr   error
	pullSince string
	pullLimit int
	deleted   []string
	deleteErr error
}

func (f *fakeRecordsRepo) Save(_ context.Context, _ string, p *api.SyncPayload) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakeRecordsRepo) Pull(_ context.Context, _ string, since string, limit int) (*api.SyncPayload, error) {
	f.pullSince, f.pullLimit = since, limit
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.pullOut == nil {
		return &api.SyncPayload{}, nil
	}
	return f.pullOut, nil
}

func (f *fakeRecordsRepo) DeleteNote(_ context.Context, _ string, noteID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, noteID)
	return nil
}

// --- files ---

type fakeFilesRepo struct {
	committed []*models.FileObject
	commitErr error
	keys      []string
	keysErr   error
	detached  []string
	detachErr error
}

func (f *fakeFilesRepo) Commit(_ context.Context, obj *models.FileObject) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, obj)
	return nil
}

func (f *fakeFilesRepo) NoteObjectKeys(context.Context, string, string) ([]string, error) {
	return f.keys, f.keysErr
}

func (f *fakeFilesRepo) DetachNote(_ context.Context, _ string, noteID string) error {
	if f.detachErr != nil {
		return f.detachErr
	}
	f.detached = append(f.detached, noteID)
	return nil
}

// --- manager ---

type fakeRepoManager struct {
	users   *fakeUsersRepo
	refresh *fakeRefreshRepo
	records *fakeRecordsRepo
	files   *fakeFilesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:   newFakeUsersRepo(),
		refresh: newFakeRefreshRepo(),
		records: &fakeRecordsRepo{},
		files:   &fakeFilesRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refresh
}
func (m *fakeRepoManager) Records(dbx.DBTX) records.Repository { return m.records }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository     { return m.files }

// --- notifier ---

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) Notify(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID)
}

func (n *fakeNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// --- object storage ---

type fakeStorage struct {
	sizes     map[string]int64
	headErr   error
	deleted   []string
	deleteErr error
	signErr   error
}

func (s *fakeStorage) PresignPut(_ context.Context, key string) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return "https://s3/put/" + key, nil
}

func (s *fakeStorage) PresignGet(_ context.Context, key string) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return "https://s3/get/" + key, nil
}

func (s *fakeStorage) Head(_ context.Context, key string) (int64, error) {
	if s.headErr != nil {
		return 0, s.headErr
	}
	size, ok := s.sizes[key]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return size, nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return s.deleteErr
}
