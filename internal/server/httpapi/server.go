// Package httpapi exposes the sync server over HTTP with chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type AuthService interface {
	Register(ctx context.Context, email, password string) (*api.TokenPair, error)
	Login(ctx context.Context, email, password string) (*api.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*api.TokenPair, error)
	Profile(ctx context.Context, userID string) (*api.Profile, error)
	Authenticate(accessToken string) (string, error)
}

type SyncService interface {
	Push(ctx context.Context, userID string, p *api.SyncPayload) error
	Pull(ctx context.Context, userID, since string, limit int) (*api.SyncPayload, error)
}

type FileService interface {
	PresignUpload(ctx context.Context, userID string, req *api.PresignUploadRequest) (*api.PresignUploadResponse, error)
	CommitUpload(ctx context.Context, userID string, req *api.CommitUploadRequest) (*api.CommitUploadResponse, error)
	ViewURL(ctx context.Context, userID, key string) (*api.ViewURLResponse, error)
	DeleteNote(ctx context.Context, userID, noteID string) error
}

type Broker interface {
	Subscribe(userID string) *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	address   string
	logger    logging.Logger
	auth      AuthService
	sync      SyncService
	files     FileService
	broker    Broker
	keepAlive time.Duration
	validate  *validator.Validate
}

func NewServer(address string, l logging.Logger, as AuthService, ss SyncService, fs FileService, b Broker, keepAlive time.Duration) *Server {
	return &Server{
		address:   address,
		logger:    l.With("module", "http_server"),
		auth:      as,
		sync:      ss,
		files:     fs,
		broker:    b,
		keepAlive: keepAlive,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(api.PathHealth, s.handleHealth)

	r.Post(api.PathRegister, s.handleRegister)
	r.Post(api.PathLogin, s.handleLogin)
	r.Post(api.PathRefresh, s.handleRefresh)

	// The event stream authenticates with a query parameter.
	r.Get(api.PathEvents, s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)

		r.Get(api.PathProfile, s.handleProfile)

		r.With(bodyLimit(api.MaxPushBody)).Post(api.PathPush, s.handlePush)
		r.Get(api.PathPull, s.handlePull)

		r.Post(api.PathPresignUpload, s.handlePresignUpload)
		r.Post(api.PathCommitUpload, s.handleCommitUpload)
		r.Get(api.PathViewURL, s.handleViewURL)

		r.Delete(api.PathNotes+"/{id}", s.handleDeleteNote)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
