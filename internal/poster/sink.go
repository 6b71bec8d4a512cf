package poster

import (
	"context"
	"time"

	"vkrelay/pkg/logx"
)

// Sink receives job events. Every call is bounded by the registry's sink
// timeout; an event whose call does not return in time is dropped.
//
// Completed and Failed are mutually exclusive and called exactly once per
// job, after the job has left the registry.
type Sink interface {
	Started(ctx context.Context, job JobSnapshot)
	Progress(ctx context.Context, job JobSnapshot)
	AttemptFailed(ctx context.Context, f AttemptFailure)
	Completed(ctx context.Context, s Summary)
	Failed(ctx context.Context, s Summary)
}

// NopSink ignores every event. Embed it to implement a subset of Sink.
type NopSink struct{}

func (NopSink) Started(context.Context, JobSnapshot)          {}
func (NopSink) Progress(context.Context, JobSnapshot)         {}
func (NopSink) AttemptFailed(context.Context, AttemptFailure) {}
func (NopSink) Completed(context.Context, Summary)            {}
func (NopSink) Failed(context.Context, Summary)               {}

// deliver runs fn on its own goroutine and waits at most timeout. The
// context passed to fn survives cancellation of ctx so final events still
// go out during shutdown.
func deliver(ctx context.Context, log logx.Logger, m *Metrics, event string, timeout time.Duration, fn func(context.Context)) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				log.Error("sink panicked", logx.String("event", event), logx.Any("panic", p))
			}
		}()
		fn(sctx)
	}()

	select {
	case <-done:
	case <-sctx.Done():
		log.Warn("sink event dropped (slow sink)", logx.String("event", event), logx.Duration("timeout", timeout))
		m.sinkDropped(event)
	}
}
