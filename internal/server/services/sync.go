package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
)

// Notifier tells a user's other devices that there is something to pull.
type Notifier interface {
	Notify(userID string)
}

// SyncService accepts pushed records and serves pulls.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    Notifier
	pullLimit   int
	logger      logging.Logger
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, n Notifier, cfg *config.Config, l logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		notifier:    n,
		pullLimit:   cfg.PullLimit,
		logger:      l.With("module", "sync_service"),
	}
}

// Push stores p for userID in one transaction and notifies the user's
// devices. Accounts without sync access get common.ErrNoSyncAccess.
func (s *SyncService) Push(ctx context.Context, userID string, p *api.SyncPayload) error {
	if err := requireSyncAccess(ctx, s.db, s.repomanager, userID); err != nil {
		return err
	}

	if p.Empty() {
		return nil
	}

	// Object keys outside the user's prefix are dropped.
	for i := range p.Files {
		if k := p.Files[i].S3Key; k != nil && !ownsKey(userID, *k) {
			p.Files[i].S3Key = nil
		}
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Records(tx).Save(ctx, userID, p)
	})
	if err != nil {
		return fmt.Errorf("error saving records: %w", err)
	}

	s.logger.Debug(ctx, "push stored", "user", userID, "records", p.Len())
	s.notifier.Notify(userID)
	return nil
}

// Pull returns what changed for userID after since. limit <= 0 falls back
// to the configured default; anything above api.MaxPullLimit is capped.
func (s *SyncService) Pull(ctx context.Context, userID, since string, limit int) (*api.SyncPayload, error) {
	if limit <= 0 {
		limit = s.pullLimit
	}
	if limit > api.MaxPullLimit {
		limit = api.MaxPullLimit
	}

	p, err := s.repomanager.Records(s.db).Pull(ctx, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("error pulling records: %w", err)
	}
	return p, nil
}

func requireSyncAccess(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager, userID string) error {
	user, err := m.Users(db).GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("error loading user: %w", err)
	}
	if !user.HasSyncAccess {
		return common.ErrNoSyncAccess
	}
	return nil
}

func ownsKey(userID, key string) bool {
	return strings.HasPrefix(key, userID+"/") && len(key) > len(userID)+1
}
