package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

const folderColumns = `select id, parent_id, name, color, created_at, updated_at, sync_status, is_deleted from folders`

func scanFolder(s scanner) (*models.Folder, error) {
	var (
		f        models.Folder
		parentID sql.NullString
		status   string
	)
	if err := s.Scan(&f.ID, &parentID, &f.Name, &f.Color, &f.CreatedAt, &f.UpdatedAt, &status, &f.IsDeleted); err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.String
	}
	f.SyncStatus = models.SyncStatus(status)
	return &f, nil
}

func getFolder(ctx context.Context, db dbx.DBTX, id string) (*models.Folder, error) {
	f, err := scanFolder(db.QueryRowContext(ctx, folderColumns+" where id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", id, err)
	}
	return f, nil
}

func listFolders(ctx context.Context, db dbx.DBTX, where string, args ...any) ([]*models.Folder, error) {
	rows, err := db.QueryContext(ctx, folderColumns+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting folders: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning folder: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return result, nil
}

func putFolder(ctx context.Context, db dbx.DBTX, f *models.Folder) error {
	query := `insert into folders (id, parent_id, name, color, created_at, updated_at, sync_status, is_deleted)
		values (?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			parent_id = excluded.parent_id,
			name = excluded.name,
			color = excluded.color,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			is_deleted = excluded.is_deleted`

	_, err := db.ExecContext(ctx, query, f.ID, f.ParentID, f.Name, f.Color, f.CreatedAt, f.UpdatedAt,
		string(f.SyncStatus), f.IsDeleted)
	if err != nil {
		return fmt.Errorf("failed to upsert folder: %w", err)
	}
	return nil
}
