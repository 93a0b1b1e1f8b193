// Package models defines the client-side records kept in the local store and
// the small value types shared by the sync machinery.
package models

// Collection names one of the four record tables.
type Collection string

const (
	CollectionNotes   Collection = "notes"
	CollectionFolders Collection = "folders"
	CollectionTags    Collection = "tags"
	CollectionFiles   Collection = "files"
)

// Collections lists every collection in pull-merge order: containers first,
// so notes land after the folders and tags they reference.
var Collections = []Collection{CollectionFolders, CollectionTags, CollectionNotes, CollectionFiles}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionNotes, CollectionFolders, CollectionTags, CollectionFiles:
		return true
	}
	return false
}

// SoftDeletes reports whether deleting from c leaves a tombstone row.
// Notes and folders do; tags and files are removed at once.
func (c Collection) SoftDeletes() bool {
	return c == CollectionNotes || c == CollectionFolders
}

// SyncStatus tracks a record's position in the sync cycle.
type SyncStatus string

const (
	// SyncStatusDirty marks unpushed local changes.
	SyncStatusDirty SyncStatus = "dirty"
	// SyncStatusSynced marks a record matching the server.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusCloudOnly marks a file whose payload lives only in object storage.
	SyncStatusCloudOnly SyncStatus = "cloud_only"
)

// Meta is the bookkeeping every record carries. Timestamps are canonical
// instant strings (see timex.InstantLayout).
type Meta struct {
	ID         string
	CreatedAt  string
	UpdatedAt  string
	SyncStatus SyncStatus
	IsDeleted  bool
}

// GetMeta gives generic code access to the embedded bookkeeping.
func (m *Meta) GetMeta() *Meta { return m }

// Record is implemented by *Note, *Folder, *Tag and *File.
type Record interface {
	Collection() Collection
	GetMeta() *Meta
}

// Attachment is a file reference listed on a note.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type Note struct {
	Meta
	FolderID    *string
	Title       string
	Content     string
	Tags        []string
	Attachments []Attachment
	IsPinned    bool
	IsArchived  bool
	Color       string
	// CoverImage is a File id, empty when the note has no cover.
	CoverImage string
}

func (*Note) Collection() Collection { return CollectionNotes }

type Folder struct {
	Meta
	ParentID *string
	Name     string
	Color    string
}

func (*Folder) Collection() Collection { return CollectionFolders }

type Tag struct {
	Meta
	Name  string
	Color string
}

func (*Tag) Collection() Collection { return CollectionTags }

// File is attachment metadata plus an optional locally cached payload.
// A nil Data means the bytes are not on this device.
type File struct {
	Meta
	NoteID     *string
	Name       string
	Type       string
	Size       int64
	Data       []byte
	Thumbnail  []byte
	S3Key      *string
	IsUploaded bool
}

func (*File) Collection() Collection { return CollectionFiles }

// HasData reports whether the payload is cached locally.
func (f *File) HasData() bool { return f.Data != nil }

// NeedsUpload reports whether the payload still has to reach object storage.
func (f *File) NeedsUpload() bool { return f.HasData() && !f.IsUploaded }

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, treating nil as "".
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
