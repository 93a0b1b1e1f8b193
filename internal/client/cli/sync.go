package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Sync runs one sync cycle in the foreground and prints the outcome.
func (a *App) Sync(ctx context.Context, _ []string) error {
	if !a.session.IsAuthenticated() {
		return fmt.Errorf("not signed in")
	}
	if err := a.engine.SyncData(ctx); err != nil {
		return err
	}
	st := a.engine.Status()
	switch st.State {
	case models.SyncSuccess:
		fmt.Fprintf(a.out, "Synced, cursor %s\n", st.LastSync)
	case models.SyncSyncing:
		fmt.Fprintln(a.out, "A sync is already running")
	default:
		fmt.Fprintf(a.out, "Sync %s %s\n", st.State, st.Message)
	}
	return nil
}

// Status prints session, connectivity and sync state.
func (a *App) Status(_ context.Context, _ []string) error {
	st := a.engine.Status()
	p := a.session.Profile()

	fmt.Fprintf(a.out, "Server:      %s\n", a.api.BaseURL())
	fmt.Fprintf(a.out, "Account:     %s\n", orDash(a.session.Email()))
	fmt.Fprintf(a.out, "Unlocked:    %t\n", a.isUnlocked())
	fmt.Fprintf(a.out, "Online:      %t\n", a.scheduler.Online())
	fmt.Fprintf(a.out, "Live:        %t\n", a.live.Connected())
	fmt.Fprintf(a.out, "Sync access: %t\n", p.HasSyncAccess)
	if p.StorageLimit > 0 {
		fmt.Fprintf(a.out, "Storage:     %d / %d bytes\n", p.StorageUsed, p.StorageLimit)
	}
	fmt.Fprintf(a.out, "Sync:        %s %s\n", st.State, st.Message)
	fmt.Fprintf(a.out, "Last sync:   %s\n", orDash(st.LastSync))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
