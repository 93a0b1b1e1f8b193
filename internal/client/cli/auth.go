package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/netx"
)

// Prompt seams, replaced in tests.
var (
	promptEmail    = askEmail
	promptPassword = askPassword
)

// credentials prompts for an email and a password. The caller wipes the
// password.
func (a *App) credentials() (string, []byte, error) {
	email, err := promptEmail(a.reader, a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := promptPassword(a.out, "Password")
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

// Register creates an account, signs in and starts syncing.
func (a *App) Register(ctx context.Context, _ []string) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, email, password); err != nil {
		return err
	}
	a.signedIn(ctx)
	return nil
}

// Login signs in online. The content key is derived from the password, so
// notes created on other devices decrypt here.
func (a *App) Login(ctx context.Context, _ []string) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Login(ctx, email, password); err != nil {
		var se *netx.StatusError
		if !errors.As(err, &se) {
			return fmt.Errorf("%w; use unlock to work offline with a saved session", err)
		}
		return err
	}
	a.signedIn(ctx)
	return nil
}

func (a *App) signedIn(ctx context.Context) {
	fmt.Fprintf(a.out, "Signed in as %s\n", a.session.Email())
	if !a.session.HasSyncAccess() {
		fmt.Fprintln(a.out, "Note: this account has no sync access, notes stay on this device.")
	}
	a.live.Start(ctx)
	a.scheduler.ForceSync()
}

// Unlock opens the saved session with the password, without the server.
func (a *App) Unlock(ctx context.Context, _ []string) error {
	if a.session.Email() != "" {
		fmt.Fprintf(a.out, "Unlocking %s\n", a.session.Email())
	}
	password, err := promptPassword(a.out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Unlock(ctx, password); err != nil {
		if errors.Is(err, services.ErrNoLocalSession) {
			return fmt.Errorf("%w, use login", err)
		}
		if errors.Is(err, common.ErrorUnauthorized) {
			return errors.New("wrong password")
		}
		return err
	}
	fmt.Fprintln(a.out, "Unlocked")
	a.scheduler.ScheduleSync()
	return nil
}

// Logout forgets tokens and the key. Local notes stay on the device.
func (a *App) Logout(ctx context.Context, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
