package poster

import (
	"context"
	"strconv"
	"time"
)

type Class string

const (
	ClassPeriodic Class = "periodic"
	ClassBulk     Class = "bulk"
	// ClassChat sends conversation messages through the registry's
	// messenger instead of posting to walls.
	ClassChat Class = "chat"
)

// Target is a VK community id for wall jobs (the wall owner is the negated
// id) and a conversation peer id for chat jobs.
type Target int64

func (t Target) String() string { return strconv.FormatInt(int64(t), 10) }

// Origin tags a job with where it was requested from. The registry never
// interprets it; sinks use it for routing replies and audit.
type Origin struct {
	ChatID    int64  `json:"chat_id,omitempty"`
	ThreadID  int    `json:"thread_id,omitempty"`
	ActorID   int64  `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
}

// JobSpec is the immutable input of a job.
type JobSpec struct {
	Class       Class
	Targets     []Target
	Payload     string
	RepeatCount int
	// Interval separates ticks. Ignored when RepeatCount is 1.
	Interval time.Duration
	// NotifyEvery is the progress cadence in attempts; 0 uses the registry default.
	NotifyEvery int
	// Replace retracts the previous post before each new one (periodic only).
	Replace bool
	// RetractAfter deletes every message of a tick this long after the
	// tick's last send (chat only). Zero keeps them.
	RetractAfter time.Duration
	Origin       Origin
	Label        string
}

type State int

const (
	StateRunning State = iota
	StateStopping
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Progress counts publish attempts. Attempted always equals
// Succeeded+Failed.
type Progress struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// PostHandle addresses a published post.
type PostHandle struct {
	PostID  int64  `json:"post_id"`
	Locator string `json:"locator,omitempty"`
}

// JobHandle is returned by Submit.
type JobHandle struct {
	Key       string
	RunID     string
	StartedAt time.Time
}

// JobSnapshot is a point-in-time copy of a job record.
type JobSnapshot struct {
	Key           string        `json:"key"`
	RunID         string        `json:"run_id"`
	Class         Class         `json:"class"`
	Label         string        `json:"label,omitempty"`
	Targets       []Target      `json:"targets"`
	Origin        Origin        `json:"origin"`
	State         State         `json:"state"`
	Progress      Progress      `json:"progress"`
	Total         int           `json:"total"`
	Interval      time.Duration `json:"interval"`
	RetractAfter  time.Duration `json:"retract_after,omitempty"`
	StopRequested bool          `json:"stop_requested,omitempty"`
	LastLocator   string        `json:"last_locator,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at,omitempty"`
}

// Summary is the final event of a job. Exactly one is emitted per job.
type Summary struct {
	JobSnapshot
	// StoppedEarly is set when the job ended on a stop request or shutdown.
	StoppedEarly bool   `json:"stopped_early,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Err          error  `json:"-"`
}

// AttemptFailure reports one failed publish or retract.
type AttemptFailure struct {
	Key     string
	RunID   string
	Origin  Origin
	Target  Target
	Tick    int
	Retract bool
	Err     error
}

// RemotePoster is the remote publish capability, a wall or a messenger. Each call is one round trip
// with no retry. A missing credential fails with ErrUnauthenticated before
// any network I/O.
type RemotePoster interface {
	Publish(ctx context.Context, target Target, payload string) (PostHandle, error)
	Retract(ctx context.Context, target Target, handle PostHandle) error
}

// CredentialSource yields the current token, read on every call.
type CredentialSource interface {
	Current() (token string, ok bool)
}
