package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/records"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/timex"
	"github.com/google/uuid"
)

// Notifier is told about every committed local mutation.
type Notifier interface {
	ScheduleSync()
}

type nopNotifier struct{}

func (nopNotifier) ScheduleSync() {}

// RecordService owns record bookkeeping: ids, timestamps, sync status and
// soft deletes. It also applies pulled records through UpsertSynced.
type RecordService struct {
	db       *sql.DB
	notifier Notifier
	log      logging.Logger

	now   func() string
	newID func() string
}

func NewRecordService(db *sql.DB, log logging.Logger) *RecordService {
	return &RecordService{
		db:       db,
		notifier: nopNotifier{},
		log:      log,
		now:      timex.Now,
		newID:    uuid.NewString,
	}
}

// SetNotifier wires the sync scheduler once it exists.
func (s *RecordService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Store returns a store over the service's database, for reads.
func (s *RecordService) Store() records.Store {
	return records.NewSQLiteStore(s.db)
}

// DB exposes the database for callers that merge inside a transaction.
func (s *RecordService) DB() *sql.DB {
	return s.db
}

// Update writes rec as a local change. A missing id is generated, an existing
// row keeps its createdAt, and the record is stored dirty with updatedAt set
// to now.
func (s *RecordService) Update(ctx context.Context, rec models.Record) (models.Record, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.update(ctx, records.NewSQLiteStore(tx), rec)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ScheduleSync()
	return rec, nil
}

func (s *RecordService) update(ctx context.Context, store records.Store, rec models.Record) error {
	m := rec.GetMeta()
	now := s.now()
	if m.ID == "" {
		m.ID = s.newID()
	}

	existing, err := store.Get(ctx, rec.Collection(), m.ID)
	switch {
	case err == nil:
		m.CreatedAt = existing.GetMeta().CreatedAt
	case errors.Is(err, common.ErrorNotFound):
		m.CreatedAt = timex.NormalizeDate(m.CreatedAt, now)
	default:
		return err
	}

	m.UpdatedAt = now
	m.SyncStatus = models.SyncStatusDirty
	if err := store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save %s[%s]: %w", rec.Collection(), m.ID, err)
	}
	return nil
}

// Delete removes a record locally. Notes and folders become dirty
// tombstones; tags and files are removed at once. An unknown id is a no-op.
func (s *RecordService) Delete(ctx context.Context, c models.Collection, id string) error {
	changed := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		store := records.NewSQLiteStore(tx)
		rec, err := store.Get(ctx, c, id)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		changed = true

		if !c.SoftDeletes() {
			return store.Remove(ctx, c, id)
		}
		m := rec.GetMeta()
		m.IsDeleted = true
		m.SyncStatus = models.SyncStatusDirty
		m.UpdatedAt = s.now()
		return store.Put(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", c, id, err)
	}
	if changed {
		s.notifier.ScheduleSync()
	}
	return nil
}

// Purge hard-deletes a row without leaving a tombstone.
func (s *RecordService) Purge(ctx context.Context, c models.Collection, id string) error {
	return s.Store().Remove(ctx, c, id)
}

// UpsertSynced merges a pulled record inside tx:
//
//   - a remote tombstone removes the local row;
//   - a local tombstone wins over an alive remote record;
//   - anything else is stored as synced.
//
// A pulled file carries no payload. It keeps the locally cached one if there
// is one and is stored cloud_only otherwise.
func (s *RecordService) UpsertSynced(ctx context.Context, tx dbx.DBTX, rec models.Record) error {
	store := records.NewSQLiteStore(tx)
	c := rec.Collection()
	m := rec.GetMeta()

	if m.IsDeleted {
		return store.Remove(ctx, c, m.ID)
	}

	existing, err := store.Get(ctx, c, m.ID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	createdFallback, updatedFallback := s.now(), s.now()
	if existing != nil {
		em := existing.GetMeta()
		if em.IsDeleted {
			s.log.Debug(ctx, "remote record ignored, local tombstone wins", "collection", c, "id", m.ID)
			return nil
		}
		createdFallback, updatedFallback = em.CreatedAt, em.UpdatedAt
	}

	if existing != nil && existing.GetMeta().CreatedAt != "" {
		m.CreatedAt = existing.GetMeta().CreatedAt
	} else {
		m.CreatedAt = timex.NormalizeDate(m.CreatedAt, createdFallback)
	}
	m.UpdatedAt = timex.NormalizeDate(m.UpdatedAt, updatedFallback)
	m.SyncStatus = models.SyncStatusSynced

	if f, ok := rec.(*models.File); ok {
		f.IsUploaded = f.S3Key != nil
		if !f.HasData() {
			if ef, ok := existing.(*models.File); ok && ef.HasData() {
				f.Data = ef.Data
				if f.Thumbnail == nil {
					f.Thumbnail = ef.Thumbnail
				}
			} else {
				f.SyncStatus = models.SyncStatusCloudOnly
			}
		}
	}

	if err := store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to merge %s[%s]: %w", c, m.ID, err)
	}
	return nil
}

// SaveFile stores a file as a local change.
func (s *RecordService) SaveFile(ctx context.Context, f *models.File) (*models.File, error) {
	if _, err := s.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *RecordService) GetFile(ctx context.Context, id string) (*models.File, error) {
	return s.Store().Files().Get(ctx, id)
}

func (s *RecordService) GetFilesByNoteID(ctx context.Context, noteID string) ([]*models.File, error) {
	return s.Store().Files().ListByNoteID(ctx, noteID)
}

func (s *RecordService) DeleteFilesByNoteID(ctx context.Context, noteID string) error {
	n, err := s.Store().Files().DeleteByNoteID(ctx, noteID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.notifier.ScheduleSync()
	}
	return nil
}

func (s *RecordService) DeleteFile(ctx context.Context, id string) error {
	return s.Delete(ctx, models.CollectionFiles, id)
}

// ClearCache drops every cached payload that can be fetched again from
// object storage. It returns the number of evicted files.
func (s *RecordService) ClearCache(ctx context.Context) (int64, error) {
	return s.Store().Files().EvictData(ctx)
}

// CacheDownloadedFile attaches a downloaded payload to a file.
func (s *RecordService) CacheDownloadedFile(ctx context.Context, id string, data []byte) error {
	return s.Store().Files().SetData(ctx, id, data, models.SyncStatusSynced)
}

func errNotFound(c models.Collection, id string) error {
	return fmt.Errorf("%s[%s]: %w", c, id, common.ErrorNotFound)
}
