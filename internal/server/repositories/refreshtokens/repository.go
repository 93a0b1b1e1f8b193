// Package refreshtokens declares the server-side repository contract for
// refresh tokens. Tokens are addressed by their SHA-256 hash.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// Repository defines operations for issuing, retrieving and revoking refresh tokens.
type Repository interface {
	// Create stores tokenHash for userID until expires.
	Create(ctx context.Context, userID string, tokenHash string, expires time.Time) error

	// Find returns the token stored under tokenHash, or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Delete removes the token stored under tokenHash. It returns
	// common.ErrorNotFound when nothing was removed, so a token can be
	// rotated only once.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
