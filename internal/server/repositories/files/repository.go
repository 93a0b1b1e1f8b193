package files

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// Repository tracks which file records have an uploaded object and where it lives.
type Repository interface {
	// Commit marks obj as uploaded, creating the file row when the metadata
	// has not been pushed yet.
	Commit(ctx context.Context, obj *models.FileObject) error
	// NoteObjectKeys lists the object keys of the files attached to noteID.
	NoteObjectKeys(ctx context.Context, userID, noteID string) ([]string, error)
	// DetachNote clears the object locators of the files of noteID.
	DetachNote(ctx context.Context, userID, noteID string) error
}
