package services

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/records"
)

// TagPalette holds the colours new tags are drawn from.
var TagPalette = []string{"#ef4444", "#f97316", "#eab308", "#22c55e", "#14b8a6", "#3b82f6", "#8b5cf6", "#ec4899"}

type TagService struct {
	records *RecordService
	notes   *NoteService
}

func NewTagService(rs *RecordService, notes *NoteService) *TagService {
	return &TagService{records: rs, notes: notes}
}

func (s *TagService) Create(ctx context.Context, name string) (*models.Tag, error) {
	t := &models.Tag{Name: name, Color: TagPalette[rand.IntN(len(TagPalette))]}
	if _, err := s.records.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TagService) Rename(ctx context.Context, id, name string) (*models.Tag, error) {
	t, err := records.GetAs[*models.Tag](ctx, s.records.Store(), models.CollectionTags, id)
	if err != nil {
		return nil, err
	}
	t.Name = name
	if _, err := s.records.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the tag and takes it off every note that carries it.
func (s *TagService) Delete(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, models.CollectionTags, id); err != nil {
		return err
	}
	notes, err := records.ListAs[*models.Note](ctx, s.records.Store(), models.CollectionNotes)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if !slices.Contains(n.Tags, id) {
			continue
		}
		n.Tags = slices.DeleteFunc(n.Tags, func(t string) bool { return t == id })
		if _, err := s.notes.Save(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *TagService) List(ctx context.Context) ([]*models.Tag, error) {
	return records.ListAs[*models.Tag](ctx, s.records.Store(), models.CollectionTags)
}

// AddToNote tags a note. Adding a tag twice is a no-op.
func (s *TagService) AddToNote(ctx context.Context, noteID, tagID string) (*models.Note, error) {
	if _, err := records.GetAs[*models.Tag](ctx, s.records.Store(), models.CollectionTags, tagID); err != nil {
		return nil, err
	}
	n, err := s.notes.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(n.Tags, tagID) {
		return n, nil
	}
	n.Tags = append(n.Tags, tagID)
	return s.notes.Save(ctx, n)
}
