package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/timex"
)

// PostgresRepository implements Repository over dbx.DBTX. Save issues one
// statement per record, so callers wrap it in dbx.WithTx.
type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

const upsertNote = `
	INSERT INTO notes (id, user_id, folder_id, title, content, size, is_pinned, is_archived, is_deleted, color, cover_image, tags, attachments, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		folder_id = EXCLUDED.folder_id, title = EXCLUDED.title, content = EXCLUDED.content, size = EXCLUDED.size,
		is_pinned = EXCLUDED.is_pinned, is_archived = EXCLUDED.is_archived, is_deleted = EXCLUDED.is_deleted,
		color = EXCLUDED.color, cover_image = EXCLUDED.cover_image,
		tags = EXCLUDED.tags, attachments = EXCLUDED.attachments,
		updated_at = EXCLUDED.updated_at
	WHERE notes.user_id = $2
`

const upsertFolder = `
	INSERT INTO folders (id, user_id, parent_id, name, color, is_deleted, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		parent_id = EXCLUDED.parent_id, name = EXCLUDED.name, color = EXCLUDED.color,
		is_deleted = EXCLUDED.is_deleted, updated_at = EXCLUDED.updated_at
	WHERE folders.user_id = $2
`

const upsertTag = `
	INSERT INTO tags (id, user_id, name, color, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, color = EXCLUDED.color, updated_at = EXCLUDED.updated_at
	WHERE tags.user_id = $2
`

// Upload state is owned by the commit step; a push only carries metadata.
const upsertFile = `
	INSERT INTO files (id, user_id, note_id, name, type, size, s3_key, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		note_id = EXCLUDED.note_id,
		name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE files.name END,
		type = CASE WHEN EXCLUDED.type <> '' THEN EXCLUDED.type ELSE files.type END,
		size = CASE WHEN files.is_uploaded THEN files.size ELSE EXCLUDED.size END,
		s3_key = COALESCE(files.s3_key, EXCLUDED.s3_key),
		updated_at = EXCLUDED.updated_at
	WHERE files.user_id = $2
`

func (r *PostgresRepository) Save(ctx context.Context, userID string, p *api.SyncPayload) error {
	now := r.now().UTC()

	for _, n := range p.Notes {
		tags, err := jsonArray(n.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags of note[%s]: %w", n.ID, err)
		}
		attachments, err := jsonArray(n.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments of note[%s]: %w", n.ID, err)
		}
		created := instant(n.CreatedAt, now)
		_, err = r.db.ExecContext(ctx, upsertNote,
			n.ID, userID, n.FolderID, n.Title, n.Content, int64(len(n.Content)),
			n.IsPinned, n.IsArchived, n.IsDeleted, n.Color, n.CoverImage,
			tags, attachments, created, instant(n.UpdatedAt, created))
		if err != nil {
			return fmt.Errorf("failed to save note[%s]: %w", n.ID, err)
		}
	}

	for _, f := range p.Folders {
		_, err := r.db.ExecContext(ctx, upsertFolder,
			f.ID, userID, f.ParentID, f.Name, f.Color, f.IsDeleted, instant(f.UpdatedAt, now))
		if err != nil {
			return fmt.Errorf("failed to save folder[%s]: %w", f.ID, err)
		}
	}

	for _, t := range p.Tags {
		_, err := r.db.ExecContext(ctx, upsertTag, t.ID, userID, t.Name, t.Color, instant(t.UpdatedAt, now))
		if err != nil {
			return fmt.Errorf("failed to save tag[%s]: %w", t.ID, err)
		}
	}

	for _, f := range p.Files {
		created := instant(f.CreatedAt, now)
		_, err := r.db.ExecContext(ctx, upsertFile,
			f.ID, userID, f.NoteID, f.Name, f.Type, f.Size, f.S3Key, created, instant(f.UpdatedAt, created))
		if err != nil {
			return fmt.Errorf("failed to save file[%s]: %w", f.ID, err)
		}
	}

	return nil
}

func (r *PostgresRepository) Pull(ctx context.Context, userID string, since string, limit int) (*api.SyncPayload, error) {
	after, ok := timex.ParseInstant(since)
	if !ok {
		after = time.Unix(0, 0)
	}

	p := &api.SyncPayload{
		Notes:   []api.Note{},
		Folders: []api.Folder{},
		Tags:    []api.Tag{},
		Files:   []api.File{},
	}

	var err error
	if p.Notes, err = r.pullNotes(ctx, userID, after, limit); err != nil {
		return nil, err
	}
	if p.Folders, err = r.pullFolders(ctx, userID, after, limit); err != nil {
		return nil, err
	}
	if p.Tags, err = r.pullTags(ctx, userID, after, limit); err != nil {
		return nil, err
	}
	if p.Files, err = r.pullFiles(ctx, userID, after, limit); err != nil {
		return nil, err
	}

	trimPage(p, limit)
	return p, nil
}

// trimPage cuts every collection back to the oldest end of any full page.
// Clients advance one cursor over all four collections, so nothing newer
// than a truncated collection may be returned.
func trimPage(p *api.SyncPayload, limit int) {
	if limit <= 0 {
		return
	}
	cutoff := ""
	lower := func(end string, full bool) {
		if full && (cutoff == "" || end < cutoff) {
			cutoff = end
		}
	}
	lower(pageEnd(p.Notes, limit, func(n api.Note) string { return n.ServerUpdatedAt }))
	lower(pageEnd(p.Folders, limit, func(f api.Folder) string { return f.ServerUpdatedAt }))
	lower(pageEnd(p.Tags, limit, func(t api.Tag) string { return t.ServerUpdatedAt }))
	lower(pageEnd(p.Files, limit, func(f api.File) string { return f.ServerUpdatedAt }))
	if cutoff == "" {
		return
	}

	// Rows sharing the cutoff instant may sit past the page, so they wait for
	// the next pull unless that would leave the page empty.
	older := func(ts string) bool { return ts < cutoff }
	upTo := func(ts string) bool { return ts <= cutoff }
	keep := upTo
	if anyOf(p.Notes, func(n api.Note) bool { return older(n.ServerUpdatedAt) }) ||
		anyOf(p.Folders, func(f api.Folder) bool { return older(f.ServerUpdatedAt) }) ||
		anyOf(p.Tags, func(t api.Tag) bool { return older(t.ServerUpdatedAt) }) ||
		anyOf(p.Files, func(f api.File) bool { return older(f.ServerUpdatedAt) }) {
		keep = older
	}
	p.Notes = filter(p.Notes, func(n api.Note) bool { return keep(n.ServerUpdatedAt) })
	p.Folders = filter(p.Folders, func(f api.Folder) bool { return keep(f.ServerUpdatedAt) })
	p.Tags = filter(p.Tags, func(t api.Tag) bool { return keep(t.ServerUpdatedAt) })
	p.Files = filter(p.Files, func(f api.File) bool { return keep(f.ServerUpdatedAt) })
}

// pageEnd reports the last timestamp of recs and whether recs is a full page.
func pageEnd[T any](recs []T, limit int, ts func(T) string) (string, bool) {
	if len(recs) < limit {
		return "", false
	}
	return ts(recs[len(recs)-1]), true
}

func anyOf[T any](recs []T, pred func(T) bool) bool {
	for _, r := range recs {
		if pred(r) {
			return true
		}
	}
	return false
}

func filter[T any](recs []T, keep func(T) bool) []T {
	out := recs[:0]
	for _, r := range recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (r *PostgresRepository) DeleteNote(ctx context.Context, userID, noteID string) error {
	query := `DELETE FROM notes WHERE id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, noteID, userID); err != nil {
		return fmt.Errorf("failed to delete note[%s]: %w", noteID, err)
	}
	return nil
}

// changed runs a "changed since" query, ordered so a limited page ends at
// the newest record it holds.
func (r *PostgresRepository) changed(ctx context.Context, query, userID string, after time.Time, limit int) (*sql.Rows, error) {
	query += ` WHERE user_id = $1 AND server_updated_at > $2 ORDER BY server_updated_at, id`
	if limit > 0 {
		return r.db.QueryContext(ctx, query+` LIMIT $3`, userID, after, limit)
	}
	return r.db.QueryContext(ctx, query, userID, after)
}

func (r *PostgresRepository) pullNotes(ctx context.Context, userID string, after time.Time, limit int) ([]api.Note, error) {
	rows, err := r.changed(ctx, `
		SELECT id, folder_id, title, content, is_pinned, is_archived, is_deleted, color, cover_image,
			tags, attachments, created_at, updated_at, server_updated_at
		FROM notes`, userID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull notes: %w", err)
	}
	defer rows.Close()

	out := []api.Note{}
	for rows.Next() {
		var (
			n                           api.Note
			folderID                    sql.NullString
			tags, attachments           []byte
			created, updated, serverUpd time.Time
		)
		if err := rows.Scan(&n.ID, &folderID, &n.Title, &n.Content, &n.IsPinned, &n.IsArchived, &n.IsDeleted,
			&n.Color, &n.CoverImage, &tags, &attachments, &created, &updated, &serverUpd); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		if folderID.Valid {
			n.FolderID = &folderID.String
		}
		n.Tags = []string{}
		if err := json.Unmarshal(tags, &n.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of note[%s]: %w", n.ID, err)
		}
		n.Attachments = []api.Attachment{}
		if err := json.Unmarshal(attachments, &n.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments of note[%s]: %w", n.ID, err)
		}
		n.CreatedAt = timex.FormatInstant(created)
		n.UpdatedAt = timex.FormatInstant(updated)
		n.ServerUpdatedAt = timex.FormatInstant(serverUpd)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) pullFolders(ctx context.Context, userID string, after time.Time, limit int) ([]api.Folder, error) {
	rows, err := r.changed(ctx, `
		SELECT id, parent_id, name, color, is_deleted, updated_at, server_updated_at
		FROM folders`, userID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull folders: %w", err)
	}
	defer rows.Close()

	out := []api.Folder{}
	for rows.Next() {
		var (
			f                 api.Folder
			parentID          sql.NullString
			updated, serverUp time.Time
		)
		if err := rows.Scan(&f.ID, &parentID, &f.Name, &f.Color, &f.IsDeleted, &updated, &serverUp); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		if parentID.Valid {
			f.ParentID = &parentID.String
		}
		f.UpdatedAt = timex.FormatInstant(updated)
		f.ServerUpdatedAt = timex.FormatInstant(serverUp)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) pullTags(ctx context.Context, userID string, after time.Time, limit int) ([]api.Tag, error) {
	rows, err := r.changed(ctx, `
		SELECT id, name, color, updated_at, server_updated_at
		FROM tags`, userID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull tags: %w", err)
	}
	defer rows.Close()

	out := []api.Tag{}
	for rows.Next() {
		var (
			t                 api.Tag
			updated, serverUp time.Time
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &updated, &serverUp); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		t.UpdatedAt = timex.FormatInstant(updated)
		t.ServerUpdatedAt = timex.FormatInstant(serverUp)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) pullFiles(ctx context.Context, userID string, after time.Time, limit int) ([]api.File, error) {
	rows, err := r.changed(ctx, `
		SELECT id, note_id, name, type, size, s3_key, created_at, updated_at, server_updated_at
		FROM files`, userID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull files: %w", err)
	}
	defer rows.Close()

	out := []api.File{}
	for rows.Next() {
		var (
			f                          api.File
			noteID, s3Key              sql.NullString
			created, updated, serverUp time.Time
		)
		if err := rows.Scan(&f.ID, &noteID, &f.Name, &f.Type, &f.Size, &s3Key, &created, &updated, &serverUp); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		if noteID.Valid {
			f.NoteID = &noteID.String
		}
		if s3Key.Valid {
			f.S3Key = &s3Key.String
		}
		f.CreatedAt = timex.FormatInstant(created)
		f.UpdatedAt = timex.FormatInstant(updated)
		f.ServerUpdatedAt = timex.FormatInstant(serverUp)
		out = append(out, f)
	}
	return out, rows.Err()
}

func instant(s string, fallback time.Time) time.Time {
	if t, ok := timex.ParseInstant(s); ok {
		return t.UTC()
	}
	return fallback
}

// jsonArray encodes v as JSON text, with nil slices as "[]".
func jsonArray[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
