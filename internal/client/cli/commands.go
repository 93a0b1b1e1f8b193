package cli

import "context"

func (a *App) commands() []command {
	exit := func(context.Context, []string) error { return errExit }
	return []command{
		{name: "register", usage: "register", run: a.Register},
		{name: "login", usage: "login", run: a.Login},
		{name: "unlock", usage: "unlock", run: a.Unlock},
		{name: "logout", usage: "logout", run: a.Logout},

		{name: "notes", usage: "notes [folderId]", locked: true, run: a.Notes},
		{name: "trash-list", usage: "trash-list", locked: true, run: a.Trashed},
		{name: "show", usage: "show <id>", minArgs: 1, locked: true, run: a.Show},
		{name: "add", usage: "add [folderId]", locked: true, run: a.Add},
		{name: "edit", usage: "edit <id>", minArgs: 1, locked: true, run: a.Edit},
		{name: "pin", usage: "pin <id>", minArgs: 1, locked: true, run: a.Pin},
		{name: "trash", usage: "trash <id>", minArgs: 1, locked: true, run: a.Trash},
		{name: "restore", usage: "restore <id>", minArgs: 1, locked: true, run: a.Restore},
		{name: "rm", usage: "rm <id>", minArgs: 1, locked: true, run: a.Remove},
		{name: "dup", usage: "dup <id>", minArgs: 1, locked: true, run: a.Duplicate},

		{name: "folders", usage: "folders", locked: true, run: a.Folders},
		{name: "mkdir", usage: "mkdir <name> [parentId]", minArgs: 1, locked: true, run: a.Mkdir},
		{name: "mvdir", usage: "mvdir <id> <parentId|->", minArgs: 2, locked: true, run: a.Mvdir},
		{name: "rmdir", usage: "rmdir <id>", minArgs: 1, locked: true, run: a.Rmdir},

		{name: "tags", usage: "tags", locked: true, run: a.Tags},
		{name: "tag", usage: "tag <name> [noteId]", minArgs: 1, locked: true, run: a.Tag},
		{name: "untag", usage: "untag <id>", minArgs: 1, locked: true, run: a.Untag},

		{name: "attach", usage: "attach <noteId> <path>", minArgs: 2, locked: true, run: a.Attach},
		{name: "open", usage: "open <fileId> <path>", minArgs: 2, locked: true, run: a.Open},
		{name: "clear-cache", usage: "clear-cache", run: a.ClearCache},

		{name: "sync", usage: "sync", locked: true, run: a.Sync},
		{name: "status", usage: "status", run: a.Status},
		{name: "exit", usage: "exit", run: exit},
		{name: "quit", usage: "quit", run: exit},
	}
}
