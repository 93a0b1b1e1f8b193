// Package records is the local store of the four synced collections.
//
// Store gives the record lifecycle service and the sync engine one
// collection-agnostic surface over notes, folders, tags and files. It works
// over a dbx.DBTX, so the same code runs against *sql.DB or inside a
// transaction:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    return records.NewSQLiteStore(tx).MarkSynced(ctx, models.CollectionNotes, pushed)
//	})
//
// Nothing here stamps timestamps or sync status; rows are written as given.
package records
