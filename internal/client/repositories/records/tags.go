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

const tagColumns = `select id, name, color, created_at, updated_at, sync_status, is_deleted from tags`

func scanTag(s scanner) (*models.Tag, error) {
	var (
		t      models.Tag
		status string
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt, &t.UpdatedAt, &status, &t.IsDeleted); err != nil {
		return nil, err
	}
	t.SyncStatus = models.SyncStatus(status)
	return &t, nil
}

func getTag(ctx context.Context, db dbx.DBTX, id string) (*models.Tag, error) {
	t, err := scanTag(db.QueryRowContext(ctx, tagColumns+" where id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag %s: %w", id, err)
	}
	return t, nil
}

func listTags(ctx context.Context, db dbx.DBTX, where string, args ...any) ([]*models.Tag, error) {
	rows, err := db.QueryContext(ctx, tagColumns+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting tags: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning tag: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return result, nil
}

func putTag(ctx context.Context, db dbx.DBTX, t *models.Tag) error {
	query := `insert into tags (id, name, color, created_at, updated_at, sync_status, is_deleted)
		values (?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			name = excluded.name,
			color = excluded.color,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			is_deleted = excluded.is_deleted`

	_, err := db.ExecContext(ctx, query, t.ID, t.Name, t.Color, t.CreatedAt, t.UpdatedAt, string(t.SyncStatus), t.IsDeleted)
	if err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	return nil
}
