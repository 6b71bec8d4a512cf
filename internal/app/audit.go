package app

import (
	"context"
	"strings"
	"time"

	"vkrelay/internal/eventbus"
	"vkrelay/internal/poster"
	"vkrelay/internal/storage"
	"vkrelay/pkg/logx"
)

const auditWriteTimeout = 2 * time.Second

// jobAuditEntry turns a job lifecycle event into an audit row.
func jobAuditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch e.Type {
	case poster.TopicJobStarted:
		snap, ok := e.Data.(poster.JobSnapshot)
		if !ok {
			return storage.AuditEntry{}, false
		}
		ent := jobEntry(snap, "job.started")
		ent.At = snap.StartedAt
		return ent, true

	case poster.TopicJobFinished:
		sum, ok := e.Data.(poster.Summary)
		if !ok {
			return storage.AuditEntry{}, false
		}
		action := "job.finished"
		switch {
		case sum.State == poster.StateFailed:
			action = "job.failed"
		case sum.StoppedEarly:
			action = "job.stopped"
		}
		ent := jobEntry(sum.JobSnapshot, action)
		ent.At = sum.FinishedAt
		ent.Attempted = sum.Progress.Attempted
		ent.Succeeded = sum.Progress.Succeeded
		ent.Failed = sum.Progress.Failed
		ent.TookMS = sum.FinishedAt.Sub(sum.StartedAt).Milliseconds()
		switch {
		case sum.Err != nil:
			ent.Error = sum.Err.Error()
		case sum.Reason != "":
			ent.Error = sum.Reason
		}
		return ent, true
	}
	return storage.AuditEntry{}, false
}

func jobEntry(s poster.JobSnapshot, action string) storage.AuditEntry {
	targets := make([]string, 0, len(s.Targets))
	for _, t := range s.Targets {
		targets = append(targets, t.String())
	}
	return storage.AuditEntry{
		ActorID:       s.Origin.ActorID,
		ActorUsername: s.Origin.ActorName,
		ChatID:        s.Origin.ChatID,
		Action:        action,
		JobKey:        s.Key,
		RunID:         s.RunID,
		Target:        strings.Join(targets, ","),
	}
}

// runAuditWriter persists job lifecycle events until ctx is done, then
// flushes whatever is still buffered.
func runAuditWriter(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	write := func(e eventbus.Event) {
		ent, ok := jobAuditEntry(e)
		if !ok {
			return
		}
		if ent.At.IsZero() {
			ent.At = e.Time
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
		defer cancel()
		if err := store.AppendAudit(wctx, ent); err != nil {
			log.Warn("audit write failed", logx.String("action", ent.Action), logx.String("job", ent.JobKey), logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return
					}
					write(e)
				default:
					return
				}
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			write(e)
		}
	}
}
