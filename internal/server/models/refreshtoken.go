package models

import "time"

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the
// token handed to the client is persisted.
type RefreshToken struct {
	UserID    string
	TokenHash string
	Expires   time.Time
}
