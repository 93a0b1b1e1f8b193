package server

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/files"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/records"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/users"
	"github.com/dmitrijs2005/notesync/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRM struct {
	migrateErr error
	migrated   bool
}

func (f *fakeRM) RunMigrations(context.Context, *sql.DB) error {
	f.migrated = true
	return f.migrateErr
}
func (f *fakeRM) Users(dbx.DBTX) users.Repository                 { return nil }
func (f *fakeRM) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return nil }
func (f *fakeRM) Records(dbx.DBTX) records.Repository             { return nil }
func (f *fakeRM) Files(dbx.DBTX) files.Repository                 { return nil }

type fakeStore struct {
	bucketErr error
	opts      storage.Options
}

func (f *fakeStore) PresignPut(context.Context, string) (string, error) { return "", nil }
func (f *fakeStore) PresignGet(context.Context, string) (string, error) { return "", nil }
func (f *fakeStore) Head(context.Context, string) (int64, error)        { return 0, nil }
func (f *fakeStore) Delete(context.Context, string) error               { return nil }
func (f *fakeStore) EnsureBucket(context.Context) error                 { return f.bucketErr }

func testConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.HTTPAddr = "127.0.0.1:0"
	c.LogLevel = "error"
	return &c
}

func stubDeps(t *testing.T, rm *fakeRM, store *fakeStore, openErr error) sqlmock.Sqlmock {
	t.Helper()
	origOpen, origRM, origStore := openDB, newRepoManager, newObjectStore
	t.Cleanup(func() {
		openDB, newRepoManager, newObjectStore = origOpen, origRM, origStore
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	openDB = func(context.Context, string) (*sql.DB, error) {
		if openErr != nil {
			return nil, openErr
		}
		return db, nil
	}
	newRepoManager = func() repomanager.RepositoryManager { return rm }
	newObjectStore = func(_ context.Context, opts storage.Options) (objectStore, error) {
		store.opts = opts
		return store, nil
	}
	return mock
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SecretKey = ""

	_, err := NewApp(context.Background(), cfg)
	require.ErrorContains(t, err, "invalid server config")
}

func TestNewApp_DBError(t *testing.T) {
	stubDeps(t, &fakeRM{}, &fakeStore{}, errors.New("refused"))

	_, err := NewApp(context.Background(), testConfig())
	require.ErrorContains(t, err, "db init error")
}

func TestNewApp_MigrationError(t *testing.T) {
	mock := stubDeps(t, &fakeRM{migrateErr: errors.New("bad sql")}, &fakeStore{}, nil)
	mock.ExpectClose()

	_, err := NewApp(context.Background(), testConfig())
	require.ErrorContains(t, err, "migrations error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_RunAndStop(t *testing.T) {
	rm := &fakeRM{}
	store := &fakeStore{bucketErr: errors.New("no bucket")}
	mock := stubDeps(t, rm, store, nil)
	mock.ExpectClose()

	cfg := testConfig()
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, rm.migrated)
	assert.Equal(t, cfg.S3Bucket, store.opts.Bucket)
	assert.Equal(t, cfg.S3BaseEndpoint, store.opts.BaseEndpoint)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpiredTokens(context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, p.err
}

func TestPurgeLoop(t *testing.T) {
	for _, purgeErr := range []error{nil, errors.New("db down")} {
		p := &countingPurger{err: purgeErr}
		app := &App{logger: logging.Nop(), auth: p}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			app.purgeLoop(ctx, 5*time.Millisecond)
			close(done)
		}()

		require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()
		<-done
	}
}
