package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/records"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// MaxAttachmentSize bounds a single attached file.
const MaxAttachmentSize = 50 << 20

var ErrFileTooLarge = errors.New("file is too large")

// NoteRemote is the part of the server API used by note operations.
type NoteRemote interface {
	DeleteNote(ctx context.Context, id string) error
	ViewURL(ctx context.Context, key string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type NoteService struct {
	records *RecordService
	remote  NoteRemote
	log     logging.Logger
}

func NewNoteService(rs *RecordService, remote NoteRemote, log logging.Logger) *NoteService {
	return &NoteService{records: rs, remote: remote, log: log}
}

func (s *NoteService) Get(ctx context.Context, id string) (*models.Note, error) {
	return records.GetAs[*models.Note](ctx, s.records.Store(), models.CollectionNotes, id)
}

// Save writes the note as a local change and returns it.
func (s *NoteService) Save(ctx context.Context, n *models.Note) (*models.Note, error) {
	if _, err := s.records.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Trash soft-deletes a note.
func (s *NoteService) Trash(ctx context.Context, id string) error {
	return s.records.Delete(ctx, models.CollectionNotes, id)
}

// Restore brings a trashed note back.
func (s *NoteService) Restore(ctx context.Context, id string) (*models.Note, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n.IsDeleted = false
	return s.Save(ctx, n)
}

// DeletePermanently drops the note and its files locally, then asks the
// server to delete them. The server call is best effort.
func (s *NoteService) DeletePermanently(ctx context.Context, id string) error {
	if err := s.records.DeleteFilesByNoteID(ctx, id); err != nil {
		return err
	}
	if err := s.records.Purge(ctx, models.CollectionNotes, id); err != nil {
		return err
	}
	if s.remote == nil {
		return nil
	}
	if err := s.remote.DeleteNote(ctx, id); err != nil {
		s.log.Warn(ctx, "server delete failed", "note", id, "error", err)
	}
	return nil
}

// Duplicate copies a note and its attachments under fresh ids.
func (s *NoteService) Duplicate(ctx context.Context, id string) (*models.Note, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	dup := *src
	dup.Meta = models.Meta{}
	dup.Title = src.Title + " (copy)"
	dup.Tags = append([]string(nil), src.Tags...)
	dup.Attachments = nil
	dup.CoverImage = ""

	var copies []*models.File
	for _, att := range src.Attachments {
		f, err := s.records.GetFile(ctx, att.ID)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cp := *f
		cp.Meta = models.Meta{}
		cp.NoteID = nil
		// A payload that is only in object storage keeps pointing at the
		// same object.
		if cp.HasData() {
			cp.S3Key = nil
			cp.IsUploaded = false
		}
		// Files first so the note never lists an attachment that is not stored.
		if _, err := s.records.SaveFile(ctx, &cp); err != nil {
			return nil, err
		}
		copies = append(copies, &cp)

		if att.ID == src.CoverImage {
			dup.CoverImage = cp.ID
		}
		att.ID = cp.ID
		dup.Attachments = append(dup.Attachments, att)
	}

	saved, err := s.Save(ctx, &dup)
	if err != nil {
		return nil, err
	}
	for _, cp := range copies {
		cp.NoteID = models.StringPtr(saved.ID)
		if _, err := s.records.SaveFile(ctx, cp); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

// List returns alive notes, pinned first and then most recently updated.
// An empty folderID lists every folder; trashed selects trashed notes instead.
func (s *NoteService) List(ctx context.Context, folderID string, trashed bool) ([]*models.Note, error) {
	all, err := records.ListAs[*models.Note](ctx, s.records.Store(), models.CollectionNotes)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Note, 0, len(all))
	for _, n := range all {
		if n.IsDeleted != trashed {
			continue
		}
		if folderID != "" && models.StringValue(n.FolderID) != folderID {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out, nil
}

// Attach stores a payload as a new file of the note and lists it on the note.
func (s *NoteService) Attach(ctx context.Context, noteID, name, mime string, data []byte) (*models.File, error) {
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("%s: %w", name, ErrFileTooLarge)
	}
	n, err := s.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	f := &models.File{
		NoteID: models.StringPtr(noteID),
		Name:   name,
		Type:   mime,
		Size:   int64(len(data)),
		Data:   data,
	}
	if _, err := s.records.SaveFile(ctx, f); err != nil {
		return nil, err
	}
	n.Attachments = append(n.Attachments, models.Attachment{ID: f.ID, Name: name, Type: mime, Size: f.Size})
	if _, err := s.Save(ctx, n); err != nil {
		return nil, err
	}
	return f, nil
}

// Open returns a file payload, downloading and caching it when it only
// exists in object storage.
func (s *NoteService) Open(ctx context.Context, fileID string) (*models.File, error) {
	f, err := s.records.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.HasData() {
		return f, nil
	}
	if f.S3Key == nil || s.remote == nil {
		return nil, fmt.Errorf("file %s has no local data: %w", fileID, common.ErrorNotFound)
	}

	u, err := s.remote.ViewURL(ctx, *f.S3Key)
	if err != nil {
		return nil, err
	}
	data, err := s.remote.Download(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := s.records.CacheDownloadedFile(ctx, fileID, data); err != nil {
		return nil, err
	}
	f.Data = data
	f.SyncStatus = models.SyncStatusSynced
	return f, nil
}
