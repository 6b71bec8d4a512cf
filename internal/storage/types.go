package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry is one line of the audit trail. Job summaries fill the
// counters; operator actions usually leave them at zero.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Action        string    `json:"action"`
	JobKey        string    `json:"job_key,omitempty"`
	RunID         string    `json:"run_id,omitempty"`
	Target        string    `json:"target,omitempty"`
	Attempted     int       `json:"attempted,omitempty"`
	Succeeded     int       `json:"succeeded,omitempty"`
	Failed        int       `json:"failed,omitempty"`
	Error         string    `json:"err,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
}
