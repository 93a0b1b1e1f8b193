package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
	"github.com/dmitrijs2005/notesync/internal/timex"
	"golang.org/x/sync/errgroup"
)

// dirtySet is one run's outgoing records, typed per collection.
type dirtySet struct {
	notes   []*models.Note
	folders []*models.Folder
	tags    []*models.Tag
	files   []*models.File
}

func (d *dirtySet) add(rec models.Record) {
	switch r := rec.(type) {
	case *models.Note:
		d.notes = append(d.notes, r)
	case *models.Folder:
		d.folders = append(d.folders, r)
	case *models.Tag:
		d.tags = append(d.tags, r)
	case *models.File:
		d.files = append(d.files, r)
	}
}

func (d *dirtySet) len() int {
	return len(d.notes) + len(d.folders) + len(d.tags) + len(d.files)
}

// withoutFiles drops the files whose ids are in skip.
func (d *dirtySet) withoutFiles(skip map[string]bool) {
	if len(skip) == 0 {
		return
	}
	kept := d.files[:0]
	for _, f := range d.files {
		if !skip[f.ID] {
			kept = append(kept, f)
		}
	}
	d.files = kept
}

func versionsOf[T models.Record](recs []T) []versionedRecord {
	out := make([]versionedRecord, len(recs))
	for i, r := range recs {
		m := r.GetMeta()
		out[i] = versionedRecord{id: m.ID, updatedAt: m.UpdatedAt}
	}
	return out
}

type versionedRecord struct {
	id        string
	updatedAt string
}

// versions lists what was pushed, per collection.
func (d *dirtySet) versions() map[models.Collection][]versionedRecord {
	return map[models.Collection][]versionedRecord{
		models.CollectionNotes:   versionsOf(d.notes),
		models.CollectionFolders: versionsOf(d.folders),
		models.CollectionTags:    versionsOf(d.tags),
		models.CollectionFiles:   versionsOf(d.files),
	}
}

// mapLimited runs fn over in with at most limit calls in flight and keeps the
// input order. The first error cancels the rest.
func mapLimited[In, Out any](ctx context.Context, limit int, in []In, fn func(In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(in))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, v := range in {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w, err := fn(v)
			if err != nil {
				return err
			}
			out[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encryptNote(key []byte, n *models.Note) (api.Note, error) {
	title, err := cryptox.EncryptField(key, n.Title)
	if err != nil {
		return api.Note{}, fmt.Errorf("note %s title: %w", n.ID, err)
	}
	content, err := cryptox.EncryptField(key, n.Content)
	if err != nil {
		return api.Note{}, fmt.Errorf("note %s content: %w", n.ID, err)
	}
	atts := make([]api.Attachment, len(n.Attachments))
	for i, a := range n.Attachments {
		atts[i] = api.Attachment(a)
	}
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return api.Note{
		ID:          n.ID,
		FolderID:    n.FolderID,
		Title:       title,
		Content:     content,
		IsPinned:    n.IsPinned,
		IsArchived:  n.IsArchived,
		IsDeleted:   n.IsDeleted,
		Color:       n.Color,
		CoverImage:  n.CoverImage,
		Tags:        tags,
		Attachments: atts,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}, nil
}

func encryptFolder(key []byte, f *models.Folder) (api.Folder, error) {
	name, err := cryptox.EncryptField(key, f.Name)
	if err != nil {
		return api.Folder{}, fmt.Errorf("folder %s name: %w", f.ID, err)
	}
	return api.Folder{
		ID:        f.ID,
		ParentID:  f.ParentID,
		Name:      name,
		Color:     f.Color,
		IsDeleted: f.IsDeleted,
		UpdatedAt: f.UpdatedAt,
	}, nil
}

func encryptTag(key []byte, t *models.Tag) (api.Tag, error) {
	name, err := cryptox.EncryptField(key, t.Name)
	if err != nil {
		return api.Tag{}, fmt.Errorf("tag %s name: %w", t.ID, err)
	}
	return api.Tag{ID: t.ID, Name: name, Color: t.Color, UpdatedAt: t.UpdatedAt}, nil
}

// encryptFile projects file metadata. The payload never travels here.
func encryptFile(key []byte, f *models.File) (api.File, error) {
	name, err := cryptox.EncryptField(key, f.Name)
	if err != nil {
		return api.File{}, fmt.Errorf("file %s name: %w", f.ID, err)
	}
	return api.File{
		ID:        f.ID,
		NoteID:    f.NoteID,
		Name:      name,
		Type:      f.Type,
		Size:      f.Size,
		S3Key:     f.S3Key,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}, nil
}

// encryptPayload builds the push body. Each record is encrypted on its own
// goroutine, at most limit at a time.
func encryptPayload(ctx context.Context, key []byte, d *dirtySet, limit int) (*api.SyncPayload, error) {
	if limit < 1 {
		limit = 1
	}
	var (
		p   api.SyncPayload
		err error
	)
	if p.Notes, err = mapLimited(ctx, limit, d.notes, func(n *models.Note) (api.Note, error) { return encryptNote(key, n) }); err != nil {
		return nil, err
	}
	if p.Folders, err = mapLimited(ctx, limit, d.folders, func(f *models.Folder) (api.Folder, error) { return encryptFolder(key, f) }); err != nil {
		return nil, err
	}
	if p.Tags, err = mapLimited(ctx, limit, d.tags, func(t *models.Tag) (api.Tag, error) { return encryptTag(key, t) }); err != nil {
		return nil, err
	}
	if p.Files, err = mapLimited(ctx, limit, d.files, func(f *models.File) (api.File, error) { return encryptFile(key, f) }); err != nil {
		return nil, err
	}
	return &p, nil
}

// undecryptable names a pulled record dropped from the merge.
type undecryptable struct {
	collection models.Collection
	id         string
}

// pulled is a decrypted pull response, in merge order.
type pulled struct {
	byCollection map[models.Collection][]models.Record
	dropped      []undecryptable
	// cursor is the newest server timestamp seen, empty if nothing arrived.
	cursor string
}

func decryptAll(key []byte, fields ...string) ([]string, bool) {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = cryptox.DecryptOrSentinel(key, f)
		if cryptox.IsSentinel(out[i]) {
			return nil, false
		}
	}
	return out, true
}

// decryptPayload turns a pull response into local records. Records with a
// field that does not decrypt are dropped, never stored with a sentinel.
func decryptPayload(key []byte, p *api.SyncPayload) *pulled {
	out := &pulled{byCollection: map[models.Collection][]models.Record{}}
	add := func(c models.Collection, rec models.Record) {
		out.byCollection[c] = append(out.byCollection[c], rec)
	}
	drop := func(c models.Collection, id string) {
		out.dropped = append(out.dropped, undecryptable{collection: c, id: id})
	}

	for _, f := range p.Folders {
		out.observe(f.ServerUpdatedAt, f.UpdatedAt)
		dec, ok := decryptAll(key, f.Name)
		if !ok {
			drop(models.CollectionFolders, f.ID)
			continue
		}
		add(models.CollectionFolders, &models.Folder{
			Meta:     models.Meta{ID: f.ID, UpdatedAt: f.UpdatedAt, IsDeleted: f.IsDeleted},
			ParentID: f.ParentID,
			Name:     dec[0],
			Color:    f.Color,
		})
	}

	for _, t := range p.Tags {
		out.observe(t.ServerUpdatedAt, t.UpdatedAt)
		dec, ok := decryptAll(key, t.Name)
		if !ok {
			drop(models.CollectionTags, t.ID)
			continue
		}
		add(models.CollectionTags, &models.Tag{
			Meta:  models.Meta{ID: t.ID, UpdatedAt: t.UpdatedAt},
			Name:  dec[0],
			Color: t.Color,
		})
	}

	for _, n := range p.Notes {
		out.observe(n.ServerUpdatedAt, n.UpdatedAt)
		dec, ok := decryptAll(key, n.Title, n.Content)
		if !ok {
			drop(models.CollectionNotes, n.ID)
			continue
		}
		atts := make([]models.Attachment, len(n.Attachments))
		for i, a := range n.Attachments {
			atts[i] = models.Attachment(a)
		}
		add(models.CollectionNotes, &models.Note{
			Meta:        models.Meta{ID: n.ID, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt, IsDeleted: n.IsDeleted},
			FolderID:    n.FolderID,
			Title:       dec[0],
			Content:     dec[1],
			Tags:        n.Tags,
			Attachments: atts,
			IsPinned:    n.IsPinned,
			IsArchived:  n.IsArchived,
			Color:       n.Color,
			CoverImage:  n.CoverImage,
		})
	}

	for _, f := range p.Files {
		out.observe(f.ServerUpdatedAt, f.UpdatedAt)
		dec, ok := decryptAll(key, f.Name)
		if !ok {
			drop(models.CollectionFiles, f.ID)
			continue
		}
		add(models.CollectionFiles, &models.File{
			Meta:   models.Meta{ID: f.ID, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt},
			NoteID: f.NoteID,
			Name:   dec[0],
			Type:   f.Type,
			Size:   f.Size,
			S3Key:  f.S3Key,
		})
	}
	return out
}

// observe advances the cursor with a record's server timestamp, falling back
// to its client timestamp.
func (p *pulled) observe(serverUpdatedAt, updatedAt string) {
	ts := timex.NormalizeDate(serverUpdatedAt, "")
	if ts == "" {
		ts = timex.NormalizeDate(updatedAt, "")
	}
	p.cursor = timex.MaxInstant(p.cursor, ts)
}
