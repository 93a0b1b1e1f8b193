// Package api defines the JSON contract between the notesync client and
// server: route paths, request and response bodies, and the encrypted record
// projections exchanged by push and pull.
//
// Text fields named in the projections (note title and content, folder, tag
// and file names) travel as cryptox ciphertext; the server stores them
// opaquely. Timestamps are canonical instant strings.
package api

const (
	PathRegister = "/auth/register"
	PathLogin    = "/auth/login"
	PathRefresh  = "/auth/refresh"
	PathProfile  = "/user/profile"

	PathPush   = "/sync/push"
	PathPull   = "/sync/pull"
	PathEvents = "/sync/events"

	PathPresignUpload = "/files/presigned-upload"
	PathCommitUpload  = "/files/commit-upload"
	PathViewURL       = "/files/view-url"

	PathNotes  = "/notes"
	PathHealth = "/health"
)

// MaxPushBody bounds a push request body.
const MaxPushBody = 15 << 20

// MaxPullLimit caps the optional per-collection pull limit.
const MaxPullLimit = 1000

type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type Profile struct {
	Email         string `json:"email"`
	HasSyncAccess bool   `json:"hasSyncAccess"`
	StorageUsed   int64  `json:"storageUsed"`
	StorageLimit  int64  `json:"storageLimit"`
}

type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type Note struct {
	ID              string       `json:"id" validate:"required"`
	FolderID        *string      `json:"folderId"`
	Title           string       `json:"title"`
	Content         string       `json:"content"`
	IsPinned        bool         `json:"isPinned"`
	IsArchived      bool         `json:"isArchived"`
	IsDeleted       bool         `json:"isDeleted"`
	Color           string       `json:"color"`
	CoverImage      string       `json:"coverImage"`
	Tags            []string     `json:"tags"`
	Attachments     []Attachment `json:"attachments"`
	CreatedAt       string       `json:"createdAt"`
	UpdatedAt       string       `json:"updatedAt"`
	ServerUpdatedAt string       `json:"serverUpdatedAt,omitempty"`
}

type Folder struct {
	ID              string  `json:"id" validate:"required"`
	ParentID        *string `json:"parentId"`
	Name            string  `json:"name"`
	Color           string  `json:"color"`
	IsDeleted       bool    `json:"isDeleted"`
	UpdatedAt       string  `json:"updatedAt"`
	ServerUpdatedAt string  `json:"serverUpdatedAt,omitempty"`
}

type Tag struct {
	ID              string `json:"id" validate:"required"`
	Name            string `json:"name"`
	Color           string `json:"color"`
	UpdatedAt       string `json:"updatedAt"`
	ServerUpdatedAt string `json:"serverUpdatedAt,omitempty"`
}

// File is file metadata only; the payload travels through object storage.
type File struct {
	ID              string  `json:"id" validate:"required"`
	NoteID          *string `json:"noteId"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Size            int64   `json:"size"`
	S3Key           *string `json:"s3Key"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
	ServerUpdatedAt string  `json:"serverUpdatedAt,omitempty"`
}

// SyncPayload is the body of a push and the response of a pull.
type SyncPayload struct {
	Notes   []Note   `json:"notes" validate:"dive"`
	Folders []Folder `json:"folders" validate:"dive"`
	Tags    []Tag    `json:"tags" validate:"dive"`
	Files   []File   `json:"files" validate:"dive"`
}

// Len counts the records across all collections.
func (p *SyncPayload) Len() int {
	return len(p.Notes) + len(p.Folders) + len(p.Tags) + len(p.Files)
}

// Empty reports whether there is nothing to push or merge.
func (p *SyncPayload) Empty() bool {
	return p.Len() == 0
}

type PresignUploadRequest struct {
	ID   string `json:"id" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`
	Type string `json:"type,omitempty"`
}

type PresignUploadResponse struct {
	URL   string `json:"url"`
	S3Key string `json:"s3Key"`
}

type CommitUploadRequest struct {
	ID    string `json:"id" validate:"required"`
	S3Key string `json:"s3Key" validate:"required"`
}

type CommitUploadResponse struct {
	StorageUsed int64 `json:"storageUsed"`
}

type ViewURLResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the JSON body of every non-2xx server answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
