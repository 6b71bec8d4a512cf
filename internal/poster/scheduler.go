package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vkrelay/internal/eventbus"
	"vkrelay/pkg/logx"
)

// outcome is how a job's loop ended.
type outcome struct {
	state        State
	stoppedEarly bool
	reason       string
	err          error
}

// scheduler executes one job. It lives on the job's goroutine.
type scheduler struct {
	reg *Registry
	rec *record
	log logx.Logger

	// last successful handle per target, pending retraction in replace mode
	pending map[Target]PostHandle
	// messages of the current tick awaiting RetractAfter
	sent []sentMessage
	tick int
}

type sentMessage struct {
	target Target
	handle PostHandle
}

func (r *Registry) run(ctx context.Context, rec *record) {
	s := &scheduler{
		reg:     r,
		rec:     rec,
		log:     r.log.With(logx.String("job", rec.key), logx.String("run_id", rec.runID)),
		pending: map[Target]PostHandle{},
	}
	s.emit(ctx, "started", func(c context.Context) { rec.sink.Started(c, rec.snapshot()) })
	eventbus.Emit(r.bus, TopicJobStarted, rec.snapshot())

	out := s.safeLoop(ctx)
	if len(s.sent) > 0 {
		// Messages sent before a stop or failure are deleted right away.
		s.retractSent(context.WithoutCancel(ctx))
	}
	s.finish(ctx, out)
}

func (s *scheduler) safeLoop(ctx context.Context) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("job loop panicked", logx.Any("panic", p))
			out = outcome{state: StateFailed, reason: "internal error", err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return s.loop(ctx)
}

func (s *scheduler) loop(ctx context.Context) outcome {
	spec := s.rec.spec
	total := spec.Total()

	for tick := 0; tick < spec.RepeatCount; tick++ {
		s.tick = tick
		if s.shouldStop(ctx) {
			return s.stopped(ctx)
		}
		for _, target := range spec.Targets {
			if s.shouldStop(ctx) {
				return s.stopped(ctx)
			}
			if spec.Replace {
				s.retractPrevious(ctx, target, tick)
			}

			h, err := s.publish(ctx, target)
			p := s.rec.recordAttempt(h, err)
			if err == nil && spec.Replace {
				s.pending[target] = h
			}
			if err == nil && spec.RetractAfter > 0 {
				s.sent = append(s.sent, sentMessage{target: target, handle: h})
			}

			if errors.Is(err, ErrUnauthenticated) {
				s.log.Warn("publish unauthenticated; failing job", logx.Int64("target", int64(target)), logx.Int("attempt", p.Attempted))
				return outcome{state: StateFailed, reason: "unauthenticated: credential missing or invalid", err: err}
			}
			if err != nil {
				s.log.Warn("publish failed",
					logx.Int64("target", int64(target)),
					logx.Int("tick", tick),
					logx.String("result", ResultLabel(err)),
					logx.Err(err),
				)
				f := AttemptFailure{Key: s.rec.key, RunID: s.rec.runID, Origin: spec.Origin, Target: target, Tick: tick, Err: err}
				s.emit(ctx, "attempt_failed", func(c context.Context) { s.rec.sink.AttemptFailed(c, f) })
			}

			if p.Attempted%s.rec.notifyEvery == 0 || p.Attempted == total {
				snap := s.rec.snapshot()
				s.emit(ctx, "progress", func(c context.Context) { s.rec.sink.Progress(c, snap) })
			}
		}

		if len(s.sent) > 0 {
			if !s.wait(ctx, spec.RetractAfter) {
				return s.stopped(ctx)
			}
			s.retractSent(ctx)
		}

		if tick < spec.RepeatCount-1 && spec.Interval > 0 {
			if !s.wait(ctx, spec.Interval) {
				return s.stopped(ctx)
			}
		}
	}
	return outcome{state: StateCompleted}
}

func (s *scheduler) shouldStop(ctx context.Context) bool {
	return s.rec.stopRequested() || ctx.Err() != nil
}

func (s *scheduler) stopped(ctx context.Context) outcome {
	s.rec.setState(StateStopping)
	reason := "stopped by request"
	if !s.rec.stopRequested() && ctx.Err() != nil {
		reason = "shutdown"
	}
	s.log.Info("job stopping", logx.String("reason", reason))
	return outcome{state: StateCompleted, stoppedEarly: true, reason: reason}
}

// wait sleeps for d and reports false when woken by a stop request or
// shutdown instead.
func (s *scheduler) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.rec.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// remote is the messenger for chat jobs and the wall poster otherwise.
func (s *scheduler) remote() RemotePoster {
	if s.rec.spec.Class == ClassChat {
		return s.reg.messenger
	}
	return s.reg.poster
}

func (s *scheduler) publish(ctx context.Context, target Target) (PostHandle, error) {
	cctx, cancel := context.WithTimeout(ctx, s.rec.callTimeout)
	defer cancel()
	h, err := s.remote().Publish(cctx, target, s.rec.spec.Payload)
	s.reg.metrics.published(err)
	return h, err
}

// retractPrevious removes the last post made to target. Failures are
// logged and reported but never stop the publish that follows.
func (s *scheduler) retractPrevious(ctx context.Context, target Target, tick int) {
	prev, ok := s.pending[target]
	if !ok {
		return
	}
	delete(s.pending, target)
	s.retract(ctx, target, prev, tick)
}

// retractSent deletes the current tick's messages in send order.
func (s *scheduler) retractSent(ctx context.Context) {
	sent := s.sent
	s.sent = nil
	for _, m := range sent {
		s.retract(ctx, m.target, m.handle, s.tick)
	}
}

func (s *scheduler) retract(ctx context.Context, target Target, prev PostHandle, tick int) {
	cctx, cancel := context.WithTimeout(ctx, s.rec.callTimeout)
	err := s.remote().Retract(cctx, target, prev)
	cancel()
	s.reg.metrics.retracted(err)
	switch {
	case err == nil:
		s.log.Debug("post retracted", logx.Int64("target", int64(target)), logx.Int64("post_id", prev.PostID))
	case errors.Is(err, ErrNotFound):
		s.log.Debug("post already gone", logx.Int64("target", int64(target)), logx.Int64("post_id", prev.PostID))
	default:
		s.log.Warn("retract failed",
			logx.Int64("target", int64(target)),
			logx.Int64("post_id", prev.PostID),
			logx.String("result", ResultLabel(err)),
			logx.Err(err),
		)
		f := AttemptFailure{Key: s.rec.key, RunID: s.rec.runID, Origin: s.rec.spec.Origin, Target: target, Tick: tick, Retract: true, Err: err}
		s.emit(ctx, "attempt_failed", func(c context.Context) { s.rec.sink.AttemptFailed(c, f) })
	}
}

// finish moves the record to its terminal state, removes it from the
// registry and only then emits the single final event.
func (s *scheduler) finish(ctx context.Context, out outcome) {
	s.rec.setState(out.state)
	snap := s.rec.snapshot()
	s.reg.remove(s.rec, snap)
	s.reg.metrics.jobFinished(snap.Class, out.state, snap.FinishedAt.Sub(snap.StartedAt))

	sum := Summary{JobSnapshot: snap, StoppedEarly: out.stoppedEarly, Reason: out.reason, Err: out.err}
	s.log.Info("job finished",
		logx.String("state", out.state.String()),
		logx.Bool("stopped_early", out.stoppedEarly),
		logx.Int("attempted", snap.Progress.Attempted),
		logx.Int("succeeded", snap.Progress.Succeeded),
		logx.Int("failed", snap.Progress.Failed),
	)
	eventbus.Emit(s.reg.bus, TopicJobFinished, sum)

	if out.state == StateFailed {
		s.emit(ctx, "failed", func(c context.Context) { s.rec.sink.Failed(c, sum) })
		return
	}
	s.emit(ctx, "completed", func(c context.Context) { s.rec.sink.Completed(c, sum) })
}

func (s *scheduler) emit(ctx context.Context, event string, fn func(context.Context)) {
	deliver(ctx, s.log, s.reg.metrics, event, s.rec.sinkTimeout, fn)
}
