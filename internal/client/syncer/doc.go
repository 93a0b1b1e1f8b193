// Package syncer reconciles the local store with the server.
//
// Engine runs one push/pull cycle at a time: upload pending file payloads,
// push encrypted dirty records, pull everything newer than the cursor and
// merge it collection by collection. Scheduler decides when a cycle runs,
// debouncing local edits and holding them back while offline. Monitor feeds
// the scheduler with connectivity changes.
//
// Errors never leave the scheduler; callers watch Engine.Status or
// Engine.Subscribe instead.
package syncer
