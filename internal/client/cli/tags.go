package cli

import (
	"context"
	"fmt"
	"strings"
)

func (a *App) Tags(ctx context.Context, _ []string) error {
	list, err := a.tags.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No tags")
		return nil
	}
	for _, t := range list {
		fmt.Fprintf(a.out, "%s  %s %s\n", t.ID, t.Name, t.Color)
	}
	return nil
}

// Tag finds or creates a tag by name and, with a note id, adds it to the note.
func (a *App) Tag(ctx context.Context, args []string) error {
	name := args[0]
	list, err := a.tags.List(ctx)
	if err != nil {
		return err
	}
	id := ""
	for _, t := range list {
		if strings.EqualFold(t.Name, name) {
			id = t.ID
			break
		}
	}
	if id == "" {
		t, err := a.tags.Create(ctx, name)
		if err != nil {
			return err
		}
		id = t.ID
		fmt.Fprintf(a.out, "Created tag %s\n", id)
	}

	if len(args) > 1 {
		if _, err := a.tags.AddToNote(ctx, args[1], id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Tagged %s\n", args[1])
	}
	return nil
}

// Untag deletes a tag everywhere.
func (a *App) Untag(ctx context.Context, args []string) error {
	return a.tags.Delete(ctx, args[0])
}

func (a *App) tagNames(ctx context.Context, ids []string) ([]string, error) {
	list, err := a.tags.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(list))
	for _, t := range list {
		names[t.ID] = t.Name
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}
