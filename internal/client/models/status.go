package models

import "time"

// SyncState is the coarse engine state observed by callers.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncPending SyncState = "pending"
	SyncSyncing SyncState = "syncing"
	SyncSuccess SyncState = "success"
	SyncError   SyncState = "error"
)

// Status is a snapshot of the sync engine.
type Status struct {
	State   SyncState
	Message string
	// LastSync is the persisted cursor after the latest successful run.
	LastSync string
	At       time.Time
}

// Profile is the cached account information that gates sync.
type Profile struct {
	Email         string
	HasSyncAccess bool
	StorageUsed   int64
	StorageLimit  int64
}
