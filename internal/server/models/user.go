// Package models defines server-side rows that are not part of the sync
// wire contract. Synced records travel as api DTOs.
package models

import "time"

type User struct {
	ID            string
	Email         string
	PasswordHash  string
	HasSyncAccess bool
	StorageLimit  int64
	CreatedAt     time.Time
}

// StorageStats is the quota view of an account. Used counts uploaded files only.
type StorageStats struct {
	Limit int64
	Used  int64
}
