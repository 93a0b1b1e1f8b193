package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
)

// ObjectStorage is the part of the object store the files service needs.
type ObjectStorage interface {
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Head(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// FileService brokers uploads and downloads of file payloads and enforces
// the per-account quota.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     ObjectStorage
	notifier    Notifier
	logger      logging.Logger
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, st ObjectStorage, n Notifier, l logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		storage:     st,
		notifier:    n,
		logger:      l.With("module", "file_service"),
	}
}

// ObjectKey is the storage key of file fileID of userID.
func ObjectKey(userID, fileID string) string {
	return userID + "/" + fileID
}

// PresignUpload signs a PUT for the file in req after checking that its
// declared size still fits the quota.
func (s *FileService) PresignUpload(ctx context.Context, userID string, req *api.PresignUploadRequest) (*api.PresignUploadResponse, error) {
	if err := requireSyncAccess(ctx, s.db, s.repomanager, userID); err != nil {
		return nil, err
	}

	stats, err := s.repomanager.Users(s.db).StorageStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading storage stats: %w", err)
	}
	if stats.Used+req.Size > stats.Limit {
		return nil, common.ErrQuotaExceeded
	}

	key := ObjectKey(userID, req.ID)
	url, err := s.storage.PresignPut(ctx, key)
	if err != nil {
		return nil, err
	}

	return &api.PresignUploadResponse{URL: url, S3Key: key}, nil
}

// CommitUpload records an uploaded object. The stored size is read from the
// object store, not trusted from the client. An object that pushes the
// account over quota is removed again.
func (s *FileService) CommitUpload(ctx context.Context, userID string, req *api.CommitUploadRequest) (*api.CommitUploadResponse, error) {
	if !ownsKey(userID, req.S3Key) {
		return nil, common.ErrorForbidden
	}

	size, err := s.storage.Head(ctx, req.S3Key)
	if err != nil {
		return nil, err
	}

	users := s.repomanager.Users(s.db)

	stats, err := users.StorageStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading storage stats: %w", err)
	}
	if stats.Used+size > stats.Limit {
		if err := s.storage.Delete(ctx, req.S3Key); err != nil {
			s.logger.Warn(ctx, "failed to remove over-quota object", "key", req.S3Key, "error", err)
		}
		return nil, common.ErrQuotaExceeded
	}

	obj := &models.FileObject{ID: req.ID, UserID: userID, S3Key: req.S3Key, Size: size}
	if err := s.repomanager.Files(s.db).Commit(ctx, obj); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorForbidden
		}
		return nil, fmt.Errorf("error committing file: %w", err)
	}

	stats, err = users.StorageStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading storage stats: %w", err)
	}

	s.notifier.Notify(userID)
	return &api.CommitUploadResponse{StorageUsed: stats.Used}, nil
}

// ViewURL signs a download of key, which must belong to userID.
func (s *FileService) ViewURL(ctx context.Context, userID, key string) (*api.ViewURLResponse, error) {
	if !ownsKey(userID, key) {
		return nil, common.ErrorForbidden
	}
	url, err := s.storage.PresignGet(ctx, key)
	if err != nil {
		return nil, err
	}
	return &api.ViewURLResponse{URL: url}, nil
}

// DeleteNote permanently removes a note and the objects of its files.
// Object removal is best effort; the rows are changed in one transaction.
func (s *FileService) DeleteNote(ctx context.Context, userID, noteID string) error {
	keys, err := s.repomanager.Files(s.db).NoteObjectKeys(ctx, userID, noteID)
	if err != nil {
		return fmt.Errorf("error listing note files: %w", err)
	}

	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "failed to delete object", "key", key, "error", err)
		}
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).DetachNote(ctx, userID, noteID); err != nil {
			return err
		}
		return s.repomanager.Records(tx).DeleteNote(ctx, userID, noteID)
	})
	if err != nil {
		return fmt.Errorf("error deleting note: %w", err)
	}

	s.notifier.Notify(userID)
	return nil
}
