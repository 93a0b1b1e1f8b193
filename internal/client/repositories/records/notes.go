package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

const noteColumns = `select id, folder_id, title, content, tags, attachments, is_pinned, is_archived, color,
	cover_image, created_at, updated_at, sync_status, is_deleted from notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n           models.Note
		folderID    sql.NullString
		tags        string
		attachments string
		status      string
	)
	err := s.Scan(&n.ID, &folderID, &n.Title, &n.Content, &tags, &attachments, &n.IsPinned, &n.IsArchived,
		&n.Color, &n.CoverImage, &n.CreatedAt, &n.UpdatedAt, &status, &n.IsDeleted)
	if err != nil {
		return nil, err
	}
	if folderID.Valid {
		n.FolderID = &folderID.String
	}
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("note %s tags: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(attachments), &n.Attachments); err != nil {
		return nil, fmt.Errorf("note %s attachments: %w", n.ID, err)
	}
	n.SyncStatus = models.SyncStatus(status)
	return &n, nil
}

func getNote(ctx context.Context, db dbx.DBTX, id string) (*models.Note, error) {
	n, err := scanNote(db.QueryRowContext(ctx, noteColumns+" where id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

func listNotes(ctx context.Context, db dbx.DBTX, where string, args ...any) ([]*models.Note, error) {
	rows, err := db.QueryContext(ctx, noteColumns+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting notes: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning note: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return result, nil
}

// jsonList encodes a slice, storing nil as an empty JSON array.
func jsonList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func putNote(ctx context.Context, db dbx.DBTX, n *models.Note) error {
	tags, err := jsonList(n.Tags)
	if err != nil {
		return fmt.Errorf("note %s tags: %w", n.ID, err)
	}
	attachments, err := jsonList(n.Attachments)
	if err != nil {
		return fmt.Errorf("note %s attachments: %w", n.ID, err)
	}

	query := `insert into notes (id, folder_id, title, content, tags, attachments, is_pinned, is_archived, color,
			cover_image, created_at, updated_at, sync_status, is_deleted)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			folder_id = excluded.folder_id,
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			attachments = excluded.attachments,
			is_pinned = excluded.is_pinned,
			is_archived = excluded.is_archived,
			color = excluded.color,
			cover_image = excluded.cover_image,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			is_deleted = excluded.is_deleted`

	_, err = db.ExecContext(ctx, query, n.ID, n.FolderID, n.Title, n.Content, tags, attachments, n.IsPinned,
		n.IsArchived, n.Color, n.CoverImage, n.CreatedAt, n.UpdatedAt, string(n.SyncStatus), n.IsDeleted)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}
