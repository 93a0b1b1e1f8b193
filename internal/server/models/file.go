package models

// FileObject ties a file record to its object in storage.
type FileObject struct {
	ID     string
	UserID string
	NoteID string
	S3Key  string
	Size   int64
}
