// Package metadata stores the client's scalar state: the sync cursor, the
// wrapped content key, session tokens and the cached account profile. Values
// are opaque bytes; typed helpers cover the common encodings.
package metadata

import (
	"context"
)

// Keys used by the client.
const (
	KeyLastSync      = "last_sync"
	KeyWrappedKey    = "wrapped_key"
	KeyEmail         = "email"
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyHasSyncAccess = "has_sync_access"
	KeyStorageUsed   = "storage_used"
	KeyStorageLimit  = "storage_limit"
)

// SessionKeys are removed on logout. The cursor goes too, so the next
// account starts from a full pull.
var SessionKeys = []string{
	KeyLastSync, KeyWrappedKey, KeyEmail, KeyAccessToken, KeyRefreshToken,
	KeyHasSyncAccess, KeyStorageUsed, KeyStorageLimit,
}

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}
