package common

import "time"

// AuthorizationHeaderName carries "Bearer <token>" on authenticated requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// SyncNeededMessage is the only live-update payload the client reacts to.
const SyncNeededMessage = "sync_needed"

// PresignExpiry is how long presigned object-storage URLs stay valid.
const PresignExpiry = 15 * time.Minute
