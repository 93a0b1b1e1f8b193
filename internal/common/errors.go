// Package common defines sentinel errors, constants and small helpers shared
// by the notesync client and server. Callers should use errors.Is to match
// the error values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorValidation    = errors.New("validation error")
	ErrorForbidden     = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrSessionExpired is returned once a refresh has failed and the local
	// session was cleared. It is never retried and never reported as a sync
	// error.
	ErrSessionExpired = errors.New("session expired")

	// ErrUnavailable reports that the server could not be reached.
	ErrUnavailable = errors.New("server unavailable")

	// ErrNoSyncAccess reports that the account is not entitled to sync or
	// cloud storage.
	ErrNoSyncAccess = errors.New("sync not available for this account")

	// ErrLocked reports that the content key is not unlocked.
	ErrLocked = errors.New("encryption key is locked")

	// ErrQuotaExceeded reports that an upload would exceed the storage limit.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)
