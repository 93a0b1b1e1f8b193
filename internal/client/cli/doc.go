// Package cli provides the interactive notesync terminal client.
//
// NewApp wires configuration, the local SQLite store, the HTTP API client,
// the record services and the sync machinery (engine, debounce scheduler,
// connectivity monitor and live-update listener). App.Run then starts the
// background pieces and blocks in a REPL until the user exits.
//
// Commands operate on the local store first; every change schedules a
// background sync, so the client keeps working offline.
package cli
