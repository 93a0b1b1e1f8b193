// Package client is the HTTP API client of the notesync server.
//
// Every authenticated call goes through one request loop that attaches the
// current bearer token and handles failures uniformly:
//
//   - 401: refresh the session once (shared by concurrent callers) and retry
//     without using up an attempt. A rejected refresh logs the session out
//     and the call fails with common.ErrSessionExpired.
//   - 429, 5xx and transport errors: back off per retryx.Policy and retry.
//   - any other non-2xx: fail at once with *netx.StatusError.
//
// The client is safe for concurrent use.
package client
