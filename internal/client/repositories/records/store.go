package records

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/files"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

// Version identifies the state of a record that was pushed.
type Version struct {
	ID        string
	UpdatedAt string
}

// Store is the collection-agnostic local store.
type Store interface {
	// Get returns common.ErrorNotFound for a missing id.
	Get(ctx context.Context, c models.Collection, id string) (models.Record, error)
	// Put inserts or replaces the full row.
	Put(ctx context.Context, rec models.Record) error
	// Remove hard-deletes a row. Missing rows are not an error.
	Remove(ctx context.Context, c models.Collection, id string) error
	List(ctx context.Context, c models.Collection) ([]models.Record, error)
	ListDirty(ctx context.Context, c models.Collection) ([]models.Record, error)
	// MarkSynced flips pushed rows to synced, skipping rows edited since.
	// It returns how many rows changed.
	MarkSynced(ctx context.Context, c models.Collection, pushed []Version) (int, error)
	Files() files.Repository
}

type SQLiteStore struct {
	db    dbx.DBTX
	files *files.SQLiteRepository
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db, files: files.NewSQLiteRepository(db)}
}

func (s *SQLiteStore) Files() files.Repository {
	return s.files
}

// table maps a collection to its table and rejects unknown names, which keeps
// the table name out of reach of caller-supplied strings.
func table(c models.Collection) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", c)
	}
	return string(c), nil
}

func (s *SQLiteStore) Get(ctx context.Context, c models.Collection, id string) (models.Record, error) {
	var (
		rec models.Record
		err error
	)
	switch c {
	case models.CollectionNotes:
		rec, err = getNote(ctx, s.db, id)
	case models.CollectionFolders:
		rec, err = getFolder(ctx, s.db, id)
	case models.CollectionTags:
		rec, err = getTag(ctx, s.db, id)
	case models.CollectionFiles:
		rec, err = s.files.Get(ctx, id)
	default:
		_, err = table(c)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec models.Record) error {
	switch r := rec.(type) {
	case *models.Note:
		return putNote(ctx, s.db, r)
	case *models.Folder:
		return putFolder(ctx, s.db, r)
	case *models.Tag:
		return putTag(ctx, s.db, r)
	case *models.File:
		return s.files.Put(ctx, r)
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
}

func (s *SQLiteStore) Remove(ctx context.Context, c models.Collection, id string) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `delete from `+t+` where id=?`, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", t, err)
	}
	return nil
}

func (s *SQLiteStore) list(ctx context.Context, c models.Collection, dirtyOnly bool) ([]models.Record, error) {
	where := "order by created_at"
	var args []any
	if dirtyOnly {
		where = "where sync_status=? order by updated_at"
		args = append(args, string(models.SyncStatusDirty))
	}

	switch c {
	case models.CollectionNotes:
		return upcast(listNotes(ctx, s.db, where, args...))
	case models.CollectionFolders:
		return upcast(listFolders(ctx, s.db, where, args...))
	case models.CollectionTags:
		return upcast(listTags(ctx, s.db, where, args...))
	case models.CollectionFiles:
		if dirtyOnly {
			return upcast(s.files.ListDirty(ctx))
		}
		return upcast(s.files.List(ctx))
	default:
		_, err := table(c)
		return nil, err
	}
}

func (s *SQLiteStore) List(ctx context.Context, c models.Collection) ([]models.Record, error) {
	return s.list(ctx, c, false)
}

func (s *SQLiteStore) ListDirty(ctx context.Context, c models.Collection) ([]models.Record, error) {
	return s.list(ctx, c, true)
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, c models.Collection, pushed []Version) (int, error) {
	t, err := table(c)
	if err != nil {
		return 0, err
	}
	n := 0
	if c == models.CollectionFiles {
		for _, v := range pushed {
			ok, err := s.files.MarkSynced(ctx, v.ID, v.UpdatedAt)
			if err != nil {
				return n, err
			}
			if ok {
				n++
			}
		}
		return n, nil
	}
	for _, v := range pushed {
		res, err := s.db.ExecContext(ctx,
			`update `+t+` set sync_status=? where id=? and updated_at=? and sync_status=?`,
			string(models.SyncStatusSynced), v.ID, v.UpdatedAt, string(models.SyncStatusDirty))
		if err != nil {
			return n, fmt.Errorf("failed to mark %s[%s] synced: %w", t, v.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return n, fmt.Errorf("failed to get rows affected: %w", err)
		}
		n += int(affected)
	}
	return n, nil
}

func upcast[T models.Record](items []T, err error) ([]models.Record, error) {
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}

// GetAs loads a record and asserts its concrete type.
func GetAs[T models.Record](ctx context.Context, s Store, c models.Collection, id string) (T, error) {
	var zero T
	rec, err := s.Get(ctx, c, id)
	if err != nil {
		return zero, err
	}
	v, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%s[%s]: unexpected record type %T: %w", c, id, rec, common.ErrorInternal)
	}
	return v, nil
}

// ListAs lists a collection as its concrete type.
func ListAs[T models.Record](ctx context.Context, s Store, c models.Collection) ([]T, error) {
	recs, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected record type %T: %w", c, r, common.ErrorInternal)
		}
		out = append(out, v)
	}
	return out, nil
}
