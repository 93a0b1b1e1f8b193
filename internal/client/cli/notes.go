package cli

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

const timeColumn = len("2006-01-02T15:04")

// Notes lists alive notes, optionally of one folder.
func (a *App) Notes(ctx context.Context, args []string) error {
	folderID := ""
	if len(args) > 0 {
		folderID = args[0]
	}
	return a.printNotes(ctx, folderID, false)
}

// Trashed lists notes in the trash.
func (a *App) Trashed(ctx context.Context, _ []string) error {
	return a.printNotes(ctx, "", true)
}

func (a *App) printNotes(ctx context.Context, folderID string, trashed bool) error {
	list, err := a.notes.List(ctx, folderID, trashed)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No notes")
		return nil
	}
	for _, n := range list {
		pin := " "
		if n.IsPinned {
			pin = "*"
		}
		fmt.Fprintf(a.out, "%s %s  %-16s %s%s\n", pin, n.ID, shortTime(n.UpdatedAt), displayTitle(n), syncMark(n.SyncStatus))
	}
	return nil
}

// Show prints one note with its tags and attachments.
func (a *App) Show(ctx context.Context, args []string) error {
	n, err := a.notes.Get(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s%s\n", displayTitle(n), syncMark(n.SyncStatus))
	if n.FolderID != nil {
		fmt.Fprintf(a.out, "Folder: %s\n", *n.FolderID)
	}
	if len(n.Tags) > 0 {
		names, err := a.tagNames(ctx, n.Tags)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Tags: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(a.out, "Updated: %s\n\n%s\n", n.UpdatedAt, n.Content)
	for _, att := range n.Attachments {
		fmt.Fprintf(a.out, "  [%s] %s (%s, %d bytes)\n", att.ID, att.Name, att.Type, att.Size)
	}
	return nil
}

// Add creates a note from prompted title and content.
func (a *App) Add(ctx context.Context, args []string) error {
	title, err := askLine(a.reader, a.out, "Title")
	if err != nil {
		return err
	}
	content, err := askBody(a.reader, a.out, "Content")
	if err != nil {
		return err
	}
	n := &models.Note{Title: title, Content: content}
	if len(args) > 0 {
		n.FolderID = models.StringPtr(args[0])
	}
	if _, err := a.notes.Save(ctx, n); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s\n", n.ID)
	return nil
}

// Edit replaces the title and content; empty answers keep the old values.
func (a *App) Edit(ctx context.Context, args []string) error {
	n, err := a.notes.Get(ctx, args[0])
	if err != nil {
		return err
	}
	title, err := askLine(a.reader, a.out, fmt.Sprintf("Title [%s]", n.Title))
	if err != nil {
		return err
	}
	content, err := askBody(a.reader, a.out, "Content, empty keeps the current text")
	if err != nil {
		return err
	}
	if title != "" {
		n.Title = title
	}
	if content != "" {
		n.Content = content
	}
	if _, err := a.notes.Save(ctx, n); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved")
	return nil
}

// Pin toggles the pinned flag.
func (a *App) Pin(ctx context.Context, args []string) error {
	n, err := a.notes.Get(ctx, args[0])
	if err != nil {
		return err
	}
	n.IsPinned = !n.IsPinned
	_, err = a.notes.Save(ctx, n)
	return err
}

func (a *App) Trash(ctx context.Context, args []string) error {
	if err := a.notes.Trash(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Moved to trash")
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if _, err := a.notes.Restore(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Restored")
	return nil
}

// Remove deletes a note and its files for good.
func (a *App) Remove(ctx context.Context, args []string) error {
	if err := a.notes.DeletePermanently(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted")
	return nil
}

func (a *App) Duplicate(ctx context.Context, args []string) error {
	n, err := a.notes.Duplicate(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s\n", n.ID)
	return nil
}

// Attach adds a local file to a note.
func (a *App) Attach(ctx context.Context, args []string) error {
	noteID, path := args[0], args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := a.notes.Attach(ctx, noteID, filepath.Base(path), mimeType(path, data), data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Attached %s (%d bytes)\n", f.ID, f.Size)
	return nil
}

// Open writes an attachment to path, downloading it first when needed.
func (a *App) Open(ctx context.Context, args []string) error {
	f, err := a.notes.Open(ctx, args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], f.Data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s to %s\n", f.Name, args[1])
	return nil
}

// ClearCache drops downloaded attachment payloads that can be fetched again.
func (a *App) ClearCache(ctx context.Context, _ []string) error {
	n, err := a.records.ClearCache(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Freed %d cached files\n", n)
	return nil
}

func mimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func displayTitle(n *models.Note) string {
	if n.Title != "" {
		return n.Title
	}
	first, _, _ := strings.Cut(strings.TrimSpace(n.Content), "\n")
	if first == "" {
		return "(untitled)"
	}
	return first
}

func shortTime(ts string) string {
	if len(ts) < timeColumn {
		return ts
	}
	return strings.Replace(ts[:timeColumn], "T", " ", 1)
}

func syncMark(s models.SyncStatus) string {
	if s == models.SyncStatusDirty {
		return " (unsynced)"
	}
	return ""
}
