package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/records"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/retryx"
	"github.com/dmitrijs2005/notesync/internal/timex"
)

// DefaultKeyWait is how long a run waits once for the token and key to show
// up, covering the start-up window before the user has unlocked.
const DefaultKeyWait = 500 * time.Millisecond

// API is the part of the server API the engine drives.
type API interface {
	Push(ctx context.Context, payload *api.SyncPayload) error
	Pull(ctx context.Context, since string, limit int) (*api.SyncPayload, error)
	PresignUpload(ctx context.Context, req api.PresignUploadRequest) (api.PresignUploadResponse, error)
	UploadObject(ctx context.Context, url, contentType string, data []byte) error
	CommitUpload(ctx context.Context, req api.CommitUploadRequest) (api.CommitUploadResponse, error)
}

// Session is the signed-in state the engine reads.
type Session interface {
	Token() string
	Key() []byte
	HasSyncAccess() bool
	SetStorageUsed(ctx context.Context, used int64) error
}

// ProfileRefresher reloads the account profile into the session.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context) (models.Profile, error)
}

type Deps struct {
	Records  *services.RecordService
	Meta     metadata.Repository
	Session  Session
	Profile  ProfileRefresher
	API      API
	Log      logging.Logger
	Reloader func()
}

type Engine struct {
	records *services.RecordService
	meta    metadata.Repository
	session Session
	profile ProfileRefresher
	api     API
	log     logging.Logger
	reload  func()
	status  *StatusTracker

	running atomic.Bool
	missed  atomic.Bool
	requeue func()

	keyWait      time.Duration
	pullLimit    int
	encryptLimit int
	now          func() time.Time
}

type Option func(*Engine)

func WithKeyWait(d time.Duration) Option {
	return func(e *Engine) { e.keyWait = d }
}

// WithPullLimit asks the server for at most n records per collection.
func WithPullLimit(n int) Option {
	return func(e *Engine) { e.pullLimit = n }
}

// WithEncryptConcurrency bounds parallel record encryption.
func WithEncryptConcurrency(n int) Option {
	return func(e *Engine) { e.encryptLimit = n }
}

func NewEngine(d Deps, opts ...Option) *Engine {
	e := &Engine{
		records:      d.Records,
		meta:         d.Meta,
		session:      d.Session,
		profile:      d.Profile,
		api:          d.API,
		log:          d.Log,
		reload:       d.Reloader,
		status:       NewStatusTracker(),
		keyWait:      DefaultKeyWait,
		encryptLimit: 8,
		now:          time.Now,
	}
	if e.log == nil {
		e.log = logging.Nop()
	}
	if e.reload == nil {
		e.reload = func() {}
	}
	e.requeue = func() {}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Status() models.Status {
	return e.status.Snapshot()
}

// Subscribe streams status transitions until the returned func is called.
func (e *Engine) Subscribe() (<-chan models.Status, func()) {
	return e.status.Subscribe()
}

// Running reports whether a run is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// MarkPending flags queued work unless a run is already under way.
func (e *Engine) MarkPending() {
	e.status.setIf(models.SyncPending, models.SyncSyncing)
}

// SetRequeue sets what is called when a sync was requested during a run.
// Edits made while the run was in flight stay dirty until the next one.
func (e *Engine) SetRequeue(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	e.requeue = fn
}

// LoadCursor publishes the persisted cursor in the status.
func (e *Engine) LoadCursor(ctx context.Context) error {
	cursor, err := e.meta.GetString(ctx, metadata.KeyLastSync)
	if err != nil {
		return err
	}
	e.status.SetLastSync(cursor)
	return nil
}

// SyncData runs one cycle. A call made while another is in flight returns at
// once. The outcome is also reflected in Status.
func (e *Engine) SyncData(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		e.missed.Store(true)
		e.log.Debug(ctx, "sync already running, queued another run")
		return nil
	}
	defer func() {
		e.running.Store(false)
		if e.missed.Swap(false) {
			e.requeue()
		}
	}()

	err := e.run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrSessionExpired):
		e.log.Warn(ctx, "sync stopped, session expired")
		e.status.Set(models.SyncIdle, "")
	default:
		e.log.Error(ctx, "sync failed", "error", err)
		e.status.Set(models.SyncError, err.Error())
	}
	return err
}

func (e *Engine) ready() bool {
	return e.session.Token() != "" && e.session.Key() != nil
}

// entitled checks sync access, refreshing the profile once if needed.
func (e *Engine) entitled(ctx context.Context) (bool, error) {
	if e.session.HasSyncAccess() {
		return true, nil
	}
	if e.profile != nil && e.session.Token() != "" {
		if _, err := e.profile.RefreshProfile(ctx); err != nil {
			if errors.Is(err, common.ErrSessionExpired) {
				return false, err
			}
			e.log.Warn(ctx, "profile refresh failed", "error", err)
		}
	}
	return e.session.HasSyncAccess(), nil
}

func (e *Engine) run(ctx context.Context) error {
	ok, err := e.entitled(ctx)
	if err != nil {
		return err
	}
	if !ok {
		e.log.Debug(ctx, "sync skipped, no sync access")
		e.status.Set(models.SyncIdle, common.ErrNoSyncAccess.Error())
		return nil
	}

	if !e.ready() {
		if err := retryx.Sleep(ctx, e.keyWait); err != nil {
			return err
		}
		if !e.ready() {
			e.log.Debug(ctx, "sync skipped, session locked")
			return nil
		}
	}
	key := e.session.Key()
	defer common.WipeByteArray(key)

	e.status.Set(models.SyncSyncing, "")
	startedAt := timex.FormatInstant(e.now())
	store := e.records.Store()

	dirty, err := e.collectDirty(ctx, store)
	if err != nil {
		return err
	}

	if err := e.uploadFiles(ctx, store, dirty); err != nil {
		return err
	}

	if dirty.len() > 0 {
		if err := e.push(ctx, key, dirty); err != nil {
			return err
		}
	}

	cursor, err := e.pull(ctx, key, startedAt)
	if err != nil {
		return err
	}

	if err := e.meta.SetString(ctx, metadata.KeyLastSync, cursor); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	e.status.SetLastSync(cursor)
	e.status.Set(models.SyncSuccess, "")
	e.reload()
	return nil
}

func (e *Engine) collectDirty(ctx context.Context, store records.Store) (*dirtySet, error) {
	d := &dirtySet{}
	for _, c := range models.Collections {
		recs, err := store.ListDirty(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			d.add(r)
		}
	}
	return d, nil
}

// uploadFiles moves pending payloads to object storage. A file that fails is
// left dirty and kept out of this push; an expired session aborts the run.
func (e *Engine) uploadFiles(ctx context.Context, store records.Store, d *dirtySet) error {
	failed := map[string]bool{}
	for _, f := range d.files {
		if !f.NeedsUpload() {
			continue
		}
		if err := e.uploadFile(ctx, store, f); err != nil {
			if errors.Is(err, common.ErrSessionExpired) || ctx.Err() != nil {
				return err
			}
			e.log.Warn(ctx, "file upload failed, will retry next sync", "file", f.ID, "error", err)
			failed[f.ID] = true
		}
	}
	d.withoutFiles(failed)
	return nil
}

func (e *Engine) uploadFile(ctx context.Context, store records.Store, f *models.File) error {
	slot, err := e.api.PresignUpload(ctx, api.PresignUploadRequest{ID: f.ID, Size: int64(len(f.Data)), Type: f.Type})
	if err != nil {
		return fmt.Errorf("presign: %w", err)
	}
	if err := e.api.UploadObject(ctx, slot.URL, f.Type, f.Data); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	res, err := e.api.CommitUpload(ctx, api.CommitUploadRequest{ID: f.ID, S3Key: slot.S3Key})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := e.session.SetStorageUsed(ctx, res.StorageUsed); err != nil {
		e.log.Warn(ctx, "failed to cache storage usage", "error", err)
	}
	if err := store.Files().MarkUploaded(ctx, f.ID, slot.S3Key); err != nil {
		return err
	}
	f.S3Key = &slot.S3Key
	f.IsUploaded = true
	e.log.Debug(ctx, "file uploaded", "file", f.ID, "key", slot.S3Key)
	return nil
}

// push sends the dirty records and marks them synced in one transaction.
// Rows edited again while the push was in flight stay dirty.
func (e *Engine) push(ctx context.Context, key []byte, d *dirtySet) error {
	payload, err := encryptPayload(ctx, key, d, e.encryptLimit)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	if payload.Empty() {
		return nil
	}
	if err := e.api.Push(ctx, payload); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	marked := 0
	err = dbx.WithTx(ctx, e.records.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
		store := records.NewSQLiteStore(tx)
		for c, vs := range d.versions() {
			pushed := make([]records.Version, len(vs))
			for i, v := range vs {
				pushed[i] = records.Version{ID: v.id, UpdatedAt: v.updatedAt}
			}
			n, err := store.MarkSynced(ctx, c, pushed)
			if err != nil {
				return err
			}
			marked += n
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	e.log.Info(ctx, "pushed", "records", payload.Len(), "marked", marked)
	return nil
}

// pull merges remote changes and returns the next cursor.
func (e *Engine) pull(ctx context.Context, key []byte, startedAt string) (string, error) {
	since, err := e.meta.GetString(ctx, metadata.KeyLastSync)
	if err != nil {
		return "", err
	}
	if since == "" {
		since = timex.EpochInstant
	}

	remote, err := e.api.Pull(ctx, since, e.pullLimit)
	if err != nil {
		return "", fmt.Errorf("pull: %w", err)
	}

	got := decryptPayload(key, remote)
	for _, d := range got.dropped {
		e.log.Warn(ctx, "pulled record does not decrypt, skipped", "collection", d.collection, "id", d.id)
	}

	for _, c := range models.Collections {
		recs := got.byCollection[c]
		if len(recs) == 0 {
			continue
		}
		err := dbx.WithTx(ctx, e.records.DB(), nil, func(ctx context.Context, tx dbx.DBTX) error {
			for _, rec := range recs {
				if err := e.records.UpsertSynced(ctx, tx, rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("merge %s: %w", c, err)
		}
	}
	e.log.Info(ctx, "pulled", "records", remote.Len(), "skipped", len(got.dropped), "since", since)

	if got.cursor == "" {
		return startedAt, nil
	}
	return got.cursor, nil
}
