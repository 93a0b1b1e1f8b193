package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Folders prints the folder tree.
func (a *App) Folders(ctx context.Context, _ []string) error {
	list, err := a.folders.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No folders")
		return nil
	}

	children := map[string][]*models.Folder{}
	known := map[string]bool{}
	for _, f := range list {
		known[f.ID] = true
	}
	for _, f := range list {
		parent := models.StringValue(f.ParentID)
		if !known[parent] {
			parent = ""
		}
		children[parent] = append(children[parent], f)
	}
	for _, fs := range children {
		sort.Slice(fs, func(i, j int) bool { return fs[i].Name < fs[j].Name })
	}

	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, f := range children[parent] {
			fmt.Fprintf(a.out, "%s%s  %s\n", strings.Repeat("  ", depth), f.ID, f.Name)
			walk(f.ID, depth+1)
		}
	}
	walk("", 0)
	return nil
}

func (a *App) Mkdir(ctx context.Context, args []string) error {
	parent := ""
	if len(args) > 1 {
		parent = args[1]
	}
	f, err := a.folders.Create(ctx, args[0], parent)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s\n", f.ID)
	return nil
}

// Mvdir moves a folder; "-" moves it to the top level.
func (a *App) Mvdir(ctx context.Context, args []string) error {
	parent := args[1]
	if parent == "-" {
		parent = ""
	}
	_, err := a.folders.Move(ctx, args[0], parent)
	return err
}

func (a *App) Rmdir(ctx context.Context, args []string) error {
	return a.folders.Delete(ctx, args[0])
}
