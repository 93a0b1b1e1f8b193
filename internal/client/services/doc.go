// Package services contains the application services of the notesync client.
//
// RecordService is the single write path into the local store: every local
// mutation goes through it, is stamped dirty and schedules a sync. The note,
// folder and tag services build the user-facing operations on top of it, and
// AuthService manages the signed-in session and the content key.
package services
