// Package storage persists the audit trail: finished job summaries and
// operator actions. Two backends exist, an append-only JSON Lines file
// and SQLite (modernc.org/sqlite, no cgo).
//
// Job state itself is never persisted; running jobs die with the process.
package storage
