// Package records stores the synced collections (notes, folders, tags and
// files) of every user. Text fields arrive encrypted and are stored as is.
package records

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/api"
)

type Repository interface {
	// Save upserts every record of p for userID. A row owned by another
	// user is left untouched.
	Save(ctx context.Context, userID string, p *api.SyncPayload) error

	// Pull returns the records of userID whose server timestamp is after
	// since, oldest first. limit <= 0 means unlimited; it applies per collection.
	Pull(ctx context.Context, userID string, since string, limit int) (*api.SyncPayload, error)

	// DeleteNote removes the note row. Deleting a missing note is not an error.
	DeleteNote(ctx context.Context, userID, noteID string) error
}
