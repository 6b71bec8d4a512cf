package poster

import (
	"sync"
	"sync/atomic"
	"time"
)

// record is the live state of one job. Only the job's own goroutine
// mutates state and progress; other goroutines read through snapshot and
// signal through requestStop.
type record struct {
	key   string
	runID string
	spec  JobSpec
	sink  Sink

	callTimeout time.Duration
	sinkTimeout time.Duration
	notifyEvery int

	stopReq atomic.Bool
	stopCh  chan struct{}

	mu         sync.Mutex
	state      State
	progress   Progress
	last       PostHandle
	startedAt  time.Time
	finishedAt time.Time
}

// requestStop flags the job once. It returns false when the job is already
// terminal or a stop was already requested.
func (r *record) requestStop() bool {
	r.mu.Lock()
	terminal := r.state.Terminal()
	r.mu.Unlock()
	if terminal || !r.stopReq.CompareAndSwap(false, true) {
		return false
	}
	close(r.stopCh)
	return true
}

func (r *record) stopRequested() bool { return r.stopReq.Load() }

func (r *record) setState(s State) {
	r.mu.Lock()
	r.state = s
	if s.Terminal() {
		r.finishedAt = time.Now()
	}
	r.mu.Unlock()
}

// recordAttempt updates all counters under one lock so observers never
// see attempted != succeeded+failed. It returns the new progress.
func (r *record) recordAttempt(h PostHandle, err error) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Attempted++
	if err != nil {
		r.progress.Failed++
	} else {
		r.progress.Succeeded++
		r.last = h
	}
	return r.progress
}

func (r *record) snapshot() JobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return JobSnapshot{
		Key:           r.key,
		RunID:         r.runID,
		Class:         r.spec.Class,
		Label:         r.spec.Label,
		Targets:       append([]Target(nil), r.spec.Targets...),
		Origin:        r.spec.Origin,
		State:         r.state,
		Progress:      r.progress,
		Total:         r.spec.Total(),
		Interval:      r.spec.Interval,
		RetractAfter:  r.spec.RetractAfter,
		StopRequested: r.stopReq.Load(),
		LastLocator:   r.last.Locator,
		StartedAt:     r.startedAt,
		FinishedAt:    r.finishedAt,
	}
}
