package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/records"
)

// ErrFolderCycle is returned when a move would put a folder inside itself.
var ErrFolderCycle = errors.New("folder cannot be moved into itself or its descendant")

// DefaultFolderColor is given to new folders.
const DefaultFolderColor = "#9ca3af"

type FolderService struct {
	records *RecordService
}

func NewFolderService(rs *RecordService) *FolderService {
	return &FolderService{records: rs}
}

func (s *FolderService) get(ctx context.Context, id string) (*models.Folder, error) {
	return records.GetAs[*models.Folder](ctx, s.records.Store(), models.CollectionFolders, id)
}

// Create adds a folder under parentID, or at the root when it is empty.
func (s *FolderService) Create(ctx context.Context, name, parentID string) (*models.Folder, error) {
	if parentID != "" {
		if _, err := s.get(ctx, parentID); err != nil {
			return nil, err
		}
	}
	f := &models.Folder{Name: name, ParentID: models.StringPtr(parentID), Color: DefaultFolderColor}
	if _, err := s.records.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FolderService) Rename(ctx context.Context, id, name string) (*models.Folder, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Name = name
	if _, err := s.records.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Move re-parents a folder. An empty parentID moves it to the root.
func (s *FolderService) Move(ctx context.Context, id, parentID string) (*models.Folder, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if parentID != "" {
		all, err := s.byID(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := all[parentID]; !ok {
			return nil, errNotFound(models.CollectionFolders, parentID)
		}
		if parentID == id || isDescendant(all, id, parentID) {
			return nil, ErrFolderCycle
		}
	}
	if models.StringValue(f.ParentID) == parentID {
		return f, nil
	}
	f.ParentID = models.StringPtr(parentID)
	if _, err := s.records.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Delete moves a folder to the trash. Its notes keep their folder reference.
func (s *FolderService) Delete(ctx context.Context, id string) error {
	return s.records.Delete(ctx, models.CollectionFolders, id)
}

// List returns alive folders in creation order.
func (s *FolderService) List(ctx context.Context) ([]*models.Folder, error) {
	all, err := records.ListAs[*models.Folder](ctx, s.records.Store(), models.CollectionFolders)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if !f.IsDeleted {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *FolderService) byID(ctx context.Context) (map[string]*models.Folder, error) {
	all, err := records.ListAs[*models.Folder](ctx, s.records.Store(), models.CollectionFolders)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*models.Folder, len(all))
	for _, f := range all {
		m[f.ID] = f
	}
	return m, nil
}

// isDescendant reports whether childID sits somewhere below ancestorID.
func isDescendant(all map[string]*models.Folder, ancestorID, childID string) bool {
	seen := map[string]bool{}
	cur, ok := all[childID]
	for ok && cur.ParentID != nil && !seen[cur.ID] {
		seen[cur.ID] = true
		if *cur.ParentID == ancestorID {
			return true
		}
		cur, ok = all[*cur.ParentID]
	}
	return false
}
