// Package server wires the sync server together: configuration, Postgres,
// object storage, services and the HTTP API. It also runs the housekeeping
// loop that purges expired refresh tokens.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/events"
	"github.com/dmitrijs2005/notesync/internal/server/httpapi"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/notesync/internal/server/services"
	"github.com/dmitrijs2005/notesync/internal/server/storage"
	"golang.org/x/sync/errgroup"
)

const purgeInterval = time.Hour

type objectStore interface {
	services.ObjectStorage
	EnsureBucket(ctx context.Context) error
}

// Swappable for tests.
var (
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
	newObjectStore = func(ctx context.Context, opts storage.Options) (objectStore, error) {
		return storage.NewS3Storage(ctx, opts)
	}
)

type tokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

type App struct {
	config *config.Config
	logger logging.Logger
	closer io.Closer
	db     *sql.DB
	server *httpapi.Server
	auth   tokenPurger
}

// NewApp validates cfg, connects to the database, applies migrations and
// builds the HTTP server. The returned App owns the database handle.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, JSON: true, File: cfg.LogFile, Output: os.Stdout})

	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		_ = closer.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newObjectStore(ctx, storage.Options{
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		_ = db.Close()
		_ = closer.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		// Uploads fail until the bucket exists; everything else still works.
		logger.Warn(ctx, "object storage bucket unavailable", "bucket", cfg.S3Bucket, "error", err)
	}

	broker := events.NewBroker(cfg.MaxDevicesPerUser)

	as := services.NewAuthService(db, rm, cfg)
	ss := services.NewSyncService(db, rm, broker, cfg, logger)
	fs := services.NewFileService(db, rm, store, broker, logger)

	srv := httpapi.NewServer(cfg.HTTPAddr, logger, as, ss, fs, broker, cfg.KeepAliveInterval)

	return &App{config: cfg, logger: logger, closer: closer, db: db, server: srv, auth: as}, nil
}

// Run serves until ctx is cancelled and releases the app's resources.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")

	defer func() {
		_ = app.db.Close()
		_ = app.closer.Close()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.server.Run(ctx)
	})

	g.Go(func() error {
		app.purgeLoop(ctx, purgeInterval)
		return nil
	})

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) purgeLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.auth.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Error(ctx, "failed to purge refresh tokens", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged refresh tokens", "count", n)
			}
		}
	}
}
