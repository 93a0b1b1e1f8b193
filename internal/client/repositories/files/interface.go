package files

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Repository describes storage operations for File records.
type Repository interface {
	// Get returns common.ErrorNotFound when no row has the id.
	Get(ctx context.Context, id string) (*models.File, error)

	// Put inserts or fully replaces a row.
	Put(ctx context.Context, f *models.File) error

	// Delete removes a row. Missing rows are not an error.
	Delete(ctx context.Context, id string) error

	List(ctx context.Context) ([]*models.File, error)
	ListDirty(ctx context.Context) ([]*models.File, error)
	ListByNoteID(ctx context.Context, noteID string) ([]*models.File, error)

	// DeleteByNoteID removes every file owned by the note.
	DeleteByNoteID(ctx context.Context, noteID string) (int64, error)

	// MarkSynced flips a dirty row to synced if it still has the given
	// updatedAt, i.e. it was not edited again while the push was in flight.
	MarkSynced(ctx context.Context, id, updatedAt string) (bool, error)

	// MarkUploaded records the object key once the payload is committed.
	MarkUploaded(ctx context.Context, id, s3Key string) error

	// SetData attaches a payload and sets the sync status.
	SetData(ctx context.Context, id string, data []byte, status models.SyncStatus) error

	// EvictData drops cached payloads of files that exist in object storage
	// and marks them cloud_only. It returns the number of evicted rows.
	EvictData(ctx context.Context) (int64, error)
}
