package files

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// PostgresRepository implements file bookkeeping over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Commit upserts the file row of obj with its object key and size. A row
// owned by another user is not touched and yields common.ErrorNotFound.
func (r *PostgresRepository) Commit(ctx context.Context, obj *models.FileObject) error {
	query := `
		INSERT INTO files (id, user_id, size, s3_key, is_uploaded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			size = EXCLUDED.size,
			s3_key = EXCLUDED.s3_key,
			is_uploaded = TRUE
		WHERE files.user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, obj.ID, obj.UserID, obj.Size, obj.S3Key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) NoteObjectKeys(ctx context.Context, userID, noteID string) ([]string, error) {
	query := `
		SELECT s3_key FROM files
		WHERE user_id = $1 AND note_id = $2 AND s3_key IS NOT NULL
	`
	rows, err := r.db.QueryContext(ctx, query, userID, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to select file keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *PostgresRepository) DetachNote(ctx context.Context, userID, noteID string) error {
	query := `
		UPDATE files SET s3_key = NULL, is_uploaded = FALSE
		WHERE user_id = $1 AND note_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, noteID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
