package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/live"
	"github.com/dmitrijs2005/notesync/internal/client/localdb"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/dmitrijs2005/notesync/internal/client/session"
	"github.com/dmitrijs2005/notesync/internal/client/syncer"
	"github.com/dmitrijs2005/notesync/internal/filex"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// DatabaseFile is the store file name inside the data directory.
const DatabaseFile = "notesync.db"

type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB

	session *session.Session
	api     *client.HTTPClient
	records *services.RecordService
	auth    *services.AuthService
	notes   *services.NoteService
	folders *services.FolderService
	tags    *services.TagService

	engine    *syncer.Engine
	scheduler *syncer.Scheduler
	monitor   *syncer.Monitor
	live      *live.Listener

	// merged is set when a sync brought remote changes into the store.
	merged atomic.Bool

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the store under c.DataDir and builds every service. The
// returned App owns the database; Run closes it.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	path, err := filex.DataPath(c.DataDir, DatabaseFile)
	if err != nil {
		return nil, err
	}
	db, err := localdb.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	a, err := newApp(ctx, c, log, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, c *config.Config, log logging.Logger, db *sql.DB) (*App, error) {
	meta := metadata.NewSQLiteRepository(db)
	sess := session.New(meta)
	if err := sess.Load(ctx); err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}

	apiClient := client.New(c.ServerURL, sess,
		client.WithPolicy(c.RetryPolicy()),
		client.WithLogger(log.With("component", "api")),
	)

	a := &App{
		config:  c,
		log:     log,
		db:      db,
		session: sess,
		api:     apiClient,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}

	a.records = services.NewRecordService(db, log.With("component", "records"))
	a.auth = services.NewAuthService(apiClient, sess, log.With("component", "auth"))
	a.notes = services.NewNoteService(a.records, apiClient, log.With("component", "notes"))
	a.folders = services.NewFolderService(a.records)
	a.tags = services.NewTagService(a.records, a.notes)

	a.engine = syncer.NewEngine(syncer.Deps{
		Records:  a.records,
		Meta:     meta,
		Session:  sess,
		Profile:  a.auth,
		API:      apiClient,
		Log:      log.With("component", "sync"),
		Reloader: func() { a.merged.Store(true) },
	})
	if err := a.engine.LoadCursor(ctx); err != nil {
		return nil, err
	}

	a.scheduler = syncer.NewScheduler(ctx, a.engine, c.DebounceDelay, log.With("component", "scheduler"))
	a.records.SetNotifier(a.scheduler)
	a.engine.SetRequeue(a.scheduler.ScheduleSync)
	a.monitor = syncer.NewMonitor(apiClient, c.OnlineCheckInterval, a.scheduler.SetOnline, log.With("component", "connectivity"))
	a.live = live.New(apiClient, sess, a.scheduler,
		live.WithRunning(a.engine.Running),
		live.WithLogger(log.With("component", "live")),
	)

	// The hook may run inside the listener's own refresh, so it must not wait.
	sess.OnLogout(func() { go a.live.Stop() })

	return a, nil
}

// Run starts the background workers, runs the REPL until exit and shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		a.monitor.Run(ctx)
	}()

	fmt.Fprintln(a.out, "notesync (type 'help' for commands)")
	if a.session.IsAuthenticated() {
		fmt.Fprintf(a.out, "Signed in as %s. Type 'unlock' to open your notes.\n", a.session.Email())
		a.live.Start(ctx)
	}

	runREPL(ctx, a.commands(), a.prompt, a.reader, a.out, a.isUnlocked)

	a.live.Stop()
	a.scheduler.Stop()
	cancel()
	<-monitorDone
	a.session.Lock()
	return a.db.Close()
}

func (a *App) isUnlocked() bool {
	return a.session.HasKey()
}

// prompt shows the account, lock state, connectivity and sync state.
func (a *App) prompt() string {
	if a.merged.Swap(false) {
		fmt.Fprintln(a.out, "* changes from other devices were merged")
	}
	who := "signed out"
	if a.session.IsAuthenticated() {
		who = a.session.Email()
		if !a.isUnlocked() {
			who += " locked"
		}
	}
	net := "online"
	if !a.scheduler.Online() {
		net = "offline"
	}
	return fmt.Sprintf("(%s, %s, %s)", who, net, a.engine.Status().State)
}
