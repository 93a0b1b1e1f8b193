// Package files persists file records: attachment metadata plus the optional
// locally cached payload and thumbnail.
//
// A file row with a NULL data column is a cloud-only file: its bytes live in
// object storage and are fetched on demand.
//
// Typical Usage
//
//	repo := files.NewSQLiteRepository(db)
//	_ = repo.Put(ctx, f)
//	dirty, _ := repo.ListDirty(ctx)
//	_ = repo.MarkUploaded(ctx, f.ID, s3Key)
//	n, _ := repo.EvictData(ctx)
//
// See also: internal/client/models.File for field semantics.
package files
