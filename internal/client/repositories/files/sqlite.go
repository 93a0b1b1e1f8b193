package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `select id, note_id, name, type, size, data, thumbnail, s3_key, is_uploaded,
	created_at, updated_at, sync_status, is_deleted from files`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var (
		f      models.File
		noteID sql.NullString
		s3Key  sql.NullString
		status string
	)
	err := s.Scan(&f.ID, &noteID, &f.Name, &f.Type, &f.Size, &f.Data, &f.Thumbnail, &s3Key, &f.IsUploaded,
		&f.CreatedAt, &f.UpdatedAt, &status, &f.IsDeleted)
	if err != nil {
		return nil, err
	}
	if noteID.Valid {
		f.NoteID = &noteID.String
	}
	if s3Key.Valid {
		f.S3Key = &s3Key.String
	}
	f.SyncStatus = models.SyncStatus(status)
	return &f, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting files: %w", err)
	}
	defer rows.Close()

	result := make([]*models.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning file: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, selectColumns+" where id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return f, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, f *models.File) error {
	query := `insert into files (id, note_id, name, type, size, data, thumbnail, s3_key, is_uploaded,
			created_at, updated_at, sync_status, is_deleted)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			note_id = excluded.note_id,
			name = excluded.name,
			type = excluded.type,
			size = excluded.size,
			data = excluded.data,
			thumbnail = excluded.thumbnail,
			s3_key = excluded.s3_key,
			is_uploaded = excluded.is_uploaded,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			is_deleted = excluded.is_deleted`

	_, err := r.db.ExecContext(ctx, query, f.ID, f.NoteID, f.Name, f.Type, f.Size, blob(f.Data), blob(f.Thumbnail), f.S3Key,
		f.IsUploaded, f.CreatedAt, f.UpdatedAt, string(f.SyncStatus), f.IsDeleted)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `delete from files where id=?`, id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.File, error) {
	return r.query(ctx, "order by created_at")
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.File, error) {
	return r.query(ctx, "where sync_status=? order by updated_at", string(models.SyncStatusDirty))
}

func (r *SQLiteRepository) ListByNoteID(ctx context.Context, noteID string) ([]*models.File, error) {
	return r.query(ctx, "where note_id=? order by created_at", noteID)
}

func (r *SQLiteRepository) DeleteByNoteID(ctx context.Context, noteID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from files where note_id=?`, noteID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete files of note %s: %w", noteID, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, updatedAt string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `update files set sync_status=? where id=? and updated_at=? and sync_status=?`,
		string(models.SyncStatusSynced), id, updatedAt, string(models.SyncStatusDirty))
	if err != nil {
		return false, fmt.Errorf("failed to mark file %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id, s3Key string) error {
	res, err := r.db.ExecContext(ctx, `update files set s3_key=?, is_uploaded=1 where id=?`, s3Key, id)
	if err != nil {
		return fmt.Errorf("failed to mark file %s uploaded: %w", id, err)
	}
	return requireOne(res)
}

func (r *SQLiteRepository) SetData(ctx context.Context, id string, data []byte, status models.SyncStatus) error {
	if data == nil {
		data = []byte{}
	}
	res, err := r.db.ExecContext(ctx, `update files set data=?, sync_status=? where id=?`, data, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set data of file %s: %w", id, err)
	}
	return requireOne(res)
}

func (r *SQLiteRepository) EvictData(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `update files set data=NULL, sync_status=?
		where data is not null and s3_key is not null and is_uploaded=1 and sync_status<>?`,
		string(models.SyncStatusCloudOnly), string(models.SyncStatusDirty))
	if err != nil {
		return 0, fmt.Errorf("failed to evict file data: %w", err)
	}
	return res.RowsAffected()
}

// blob keeps a nil slice NULL; some drivers bind it as an empty blob.
func blob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
