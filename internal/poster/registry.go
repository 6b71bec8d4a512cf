package poster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vkrelay/internal/eventbus"
	rtsup "vkrelay/internal/runtime/supervisor"
	"vkrelay/pkg/logx"
)

// Event bus topics. Started carries a JobSnapshot, Finished a Summary.
const (
	TopicJobStarted  = "poster.job.started"
	TopicJobFinished = "poster.job.finished"
)

const (
	DefaultCallTimeout = 15 * time.Second
	DefaultSinkTimeout = 2 * time.Second
	DefaultNotifyEvery = 5
	DefaultHistorySize = 50
)

// Defaults are applied to jobs at submit time and can change at runtime.
type Defaults struct {
	CallTimeout time.Duration
	SinkTimeout time.Duration
	NotifyEvery int
	HistorySize int
}

func (d Defaults) normalized() Defaults {
	if d.CallTimeout <= 0 {
		d.CallTimeout = DefaultCallTimeout
	}
	if d.SinkTimeout <= 0 {
		d.SinkTimeout = DefaultSinkTimeout
	}
	if d.NotifyEvery <= 0 {
		d.NotifyEvery = DefaultNotifyEvery
	}
	if d.HistorySize <= 0 {
		d.HistorySize = DefaultHistorySize
	}
	return d
}

type Options struct {
	Defaults
	// Messenger serves chat jobs. Without one they are rejected at submit.
	Messenger RemotePoster
	Logger    logx.Logger
	Metrics   *Metrics
	Bus       eventbus.Bus
}

// Registry owns every live job record.
type Registry struct {
	poster    RemotePoster
	messenger RemotePoster
	log       logx.Logger
	metrics   *Metrics
	bus       eventbus.Bus
	sup       *rtsup.Supervisor

	mu       sync.Mutex
	jobs     map[string]*record
	history  []JobSnapshot // oldest first
	defaults Defaults
	closed   bool
}

// NewRegistry returns a registry whose jobs live until ctx is cancelled or
// Close is called.
func NewRegistry(ctx context.Context, p RemotePoster, opts Options) *Registry {
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "poster"))
	return &Registry{
		poster:    p,
		messenger: opts.Messenger,
		log:       log,
		metrics:   opts.Metrics,
		bus:       opts.Bus,
		sup:       rtsup.New(ctx, rtsup.WithLogger(log)),
		jobs:      map[string]*record{},
		defaults:  opts.Defaults.normalized(),
	}
}

// SetDefaults changes defaults for jobs submitted from now on and trims
// history to the new size.
func (r *Registry) SetDefaults(d Defaults) {
	d = d.normalized()
	r.mu.Lock()
	r.defaults = d
	r.trimHistoryLocked()
	r.mu.Unlock()
}

// Submit validates spec, rejects key collisions and starts the job. It
// returns without waiting for the first publish. A nil sink drops events.
func (r *Registry) Submit(spec JobSpec, sink Sink) (JobHandle, error) {
	if err := spec.Validate(); err != nil {
		return JobHandle{}, err
	}
	if spec.Class == ClassChat && r.messenger == nil {
		return JobHandle{}, fmt.Errorf("%w: chat jobs need a messenger", ErrInvalidSpec)
	}
	if sink == nil {
		sink = NopSink{}
	}
	spec.Targets = append([]Target(nil), spec.Targets...)
	key := spec.Key()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return JobHandle{}, ErrClosed
	}
	if _, ok := r.jobs[key]; ok {
		r.mu.Unlock()
		return JobHandle{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}
	d := r.defaults
	notifyEvery := spec.NotifyEvery
	if notifyEvery <= 0 {
		notifyEvery = d.NotifyEvery
	}
	rec := &record{
		key:         key,
		runID:       uuid.NewString(),
		spec:        spec,
		sink:        sink,
		callTimeout: d.CallTimeout,
		sinkTimeout: d.SinkTimeout,
		notifyEvery: notifyEvery,
		stopCh:      make(chan struct{}),
		state:       StateRunning,
		startedAt:   time.Now(),
	}
	r.jobs[key] = rec
	r.mu.Unlock()

	r.metrics.jobStarted()
	r.log.Info("job submitted",
		logx.String("job", key),
		logx.String("run_id", rec.runID),
		logx.Int("targets", len(spec.Targets)),
		logx.Int("repeat", spec.RepeatCount),
		logx.Duration("interval", spec.Interval),
	)
	r.sup.Go0("job."+key, func(ctx context.Context) { r.run(ctx, rec) })
	return JobHandle{Key: key, RunID: rec.runID, StartedAt: rec.startedAt}, nil
}

// RequestStop flags the job and returns at once. It returns false when no
// live job has the key or a stop was already requested.
func (r *Registry) RequestStop(key string) bool {
	r.mu.Lock()
	rec, ok := r.jobs[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if !rec.requestStop() {
		return false
	}
	r.log.Info("job stop requested", logx.String("job", key))
	return true
}

// RequestStopAll flags every live job and returns how many were newly flagged.
func (r *Registry) RequestStopAll() int {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.jobs))
	for _, rec := range r.jobs {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	n := 0
	for _, rec := range recs {
		if rec.requestStop() {
			n++
		}
	}
	if n > 0 {
		r.log.Info("all jobs stop requested", logx.Int("count", n))
	}
	return n
}

func (r *Registry) Status(key string) (JobSnapshot, bool) {
	r.mu.Lock()
	rec, ok := r.jobs[key]
	r.mu.Unlock()
	if !ok {
		return JobSnapshot{}, false
	}
	return rec.snapshot(), true
}

// ListActive returns live jobs ordered by start time.
func (r *Registry) ListActive() []JobSnapshot {
	r.mu.Lock()
	recs := make([]*record, 0, len(r.jobs))
	for _, rec := range r.jobs {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	out := make([]JobSnapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Recent returns up to n finished jobs, newest first.
func (r *Registry) Recent(n int) []JobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.history) {
		n = len(r.history)
	}
	out := make([]JobSnapshot, 0, n)
	for i := len(r.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.history[i])
	}
	return out
}

func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Close rejects new jobs, asks every job to stop and waits for them. When
// ctx expires first, in-flight calls are cancelled.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.RequestStopAll()
	if err := r.sup.Wait(ctx); err != nil {
		r.sup.Cancel()
		return err
	}
	r.sup.Cancel()
	return nil
}

// remove drops rec from the live map and archives its final snapshot.
func (r *Registry) remove(rec *record, snap JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[rec.key]; ok && cur == rec {
		delete(r.jobs, rec.key)
	}
	r.history = append(r.history, snap)
	r.trimHistoryLocked()
}

func (r *Registry) trimHistoryLocked() {
	if over := len(r.history) - r.defaults.HistorySize; over > 0 {
		r.history = append(r.history[:0:0], r.history[over:]...)
	}
}
