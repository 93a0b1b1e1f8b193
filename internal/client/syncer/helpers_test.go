package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/client/localdb"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/require"
)

var testKey = cryptox.DeriveKey([]byte("password1"), "me@example.com")

const (
	timeoutShort = time.Second
	tick         = 5 * time.Millisecond
)

type fakeSession struct {
	mu          sync.Mutex
	token       string
	key         []byte
	access      bool
	storageUsed int64
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) Key() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil
	}
	return append([]byte(nil), s.key...)
}

func (s *fakeSession) HasSyncAccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *fakeSession) SetStorageUsed(_ context.Context, used int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageUsed = used
	return nil
}

type fakeProfile struct {
	session *fakeSession
	grant   bool
	calls   int
}

func (p *fakeProfile) RefreshProfile(context.Context) (models.Profile, error) {
	p.calls++
	if p.grant {
		p.session.mu.Lock()
		p.session.access = true
		p.session.mu.Unlock()
	}
	return models.Profile{HasSyncAccess: p.grant}, nil
}

type fakeAPI struct {
	mu sync.Mutex

	pushes  []*api.SyncPayload
	pushErr error
	onPush  func()
	block   chan struct{}

	pull      *api.SyncPayload
	pullErr   error
	pullSince []string

	uploads     map[string][]byte
	uploadErr   map[string]error
	storageUsed int64
	commits     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{uploads: map[string][]byte{}, uploadErr: map[string]error{}}
}

func (f *fakeAPI) Push(_ context.Context, p *api.SyncPayload) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.pushes = append(f.pushes, p)
	hook := f.onPush
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.pushErr
}

func (f *fakeAPI) Pull(_ context.Context, since string, _ int) (*api.SyncPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullSince = append(f.pullSince, since)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.pull == nil {
		return &api.SyncPayload{}, nil
	}
	return f.pull, nil
}

func (f *fakeAPI) PresignUpload(_ context.Context, req api.PresignUploadRequest) (api.PresignUploadResponse, error) {
	return api.PresignUploadResponse{URL: "https://objects/put/" + req.ID, S3Key: "u1/" + req.ID}, nil
}

func (f *fakeAPI) UploadObject(_ context.Context, url, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := url[strings.LastIndex(url, "/")+1:]
	if err := f.uploadErr[id]; err != nil {
		return err
	}
	f.uploads[id] = data
	return nil
}

func (f *fakeAPI) CommitUpload(_ context.Context, req api.CommitUploadRequest) (api.CommitUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, req.S3Key)
	f.storageUsed += int64(len(f.uploads[req.ID]))
	return api.CommitUploadResponse{StorageUsed: f.storageUsed}, nil
}

func (f *fakeAPI) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

type fixture struct {
	engine   *Engine
	records  *services.RecordService
	meta     metadata.Repository
	session  *fakeSession
	profile  *fakeProfile
	api      *fakeAPI
	reloads  int
	startsAt time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := localdb.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		records:  services.NewRecordService(db, logging.Nop()),
		meta:     metadata.NewSQLiteRepository(db),
		session:  &fakeSession{token: "tok", key: testKey, access: true},
		api:      newFakeAPI(),
		startsAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.profile = &fakeProfile{session: f.session}
	f.engine = NewEngine(Deps{
		Records:  f.records,
		Meta:     f.meta,
		Session:  f.session,
		Profile:  f.profile,
		API:      f.api,
		Log:      logging.Nop(),
		Reloader: func() { f.reloads++ },
	}, WithKeyWait(time.Millisecond))
	f.engine.now = func() time.Time { return f.startsAt }
	return f
}

func (f *fixture) cursor(t *testing.T) string {
	t.Helper()
	v, err := f.meta.GetString(context.Background(), metadata.KeyLastSync)
	require.NoError(t, err)
	return v
}

func enc(t *testing.T, s string) string {
	t.Helper()
	out, err := cryptox.EncryptField(testKey, s)
	require.NoError(t, err)
	return out
}

func ts(sec int) string {
	return fmt.Sprintf("2024-03-01T13:00:%02d.000Z", sec)
}
