package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vkrelay/internal/notifier"
	"vkrelay/internal/poster"
	"vkrelay/internal/transport"
	"vkrelay/pkg/logx"
)

// Notifier is the async delivery path for job messages.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// chatSink renders job events into the chat the job was started from.
type chatSink struct {
	notify  Notifier
	adapter transport.Adapter
	log     logx.Logger
}

var _ poster.Sink = (*chatSink)(nil)

func (s *chatSink) Started(ctx context.Context, j poster.JobSnapshot) {
	s.send(ctx, j.Origin, 3, fmt.Sprintf("▶️ Started %s\n%s", jobTitle(j), jobPlan(j)))
}

func (s *chatSink) Progress(ctx context.Context, j poster.JobSnapshot) {
	text := fmt.Sprintf("📊 %s: %d/%d (ok %d, failed %d)", j.Key, j.Progress.Attempted, j.Total, j.Progress.Succeeded, j.Progress.Failed)
	if j.LastLocator != "" {
		text += "\n" + j.LastLocator
	}
	s.send(ctx, j.Origin, 3, text)
}

func (s *chatSink) AttemptFailed(ctx context.Context, f poster.AttemptFailure) {
	// Ticks are 0-based; operators count posts from 1.
	n := f.Tick + 1
	var text string
	switch {
	case isChatKey(f.Key) && f.Retract:
		text = fmt.Sprintf("Could not delete message %d in chat %s: %s", n, f.Target, describeErr(f.Err))
	case isChatKey(f.Key):
		text = fmt.Sprintf("Message %d to chat %s failed: %s", n, f.Target, describeErr(f.Err))
	case f.Retract:
		text = fmt.Sprintf("Could not delete the previous post in group %s: %s", f.Target, describeErr(f.Err))
	default:
		text = fmt.Sprintf("Post %d to group %s failed: %s", n, f.Target, describeErr(f.Err))
	}
	s.send(ctx, f.Origin, 7, text)
}

func (s *chatSink) Completed(ctx context.Context, sum poster.Summary) {
	head := "✅ Finished"
	if sum.StoppedEarly {
		head = "⏹ Stopped (" + sum.Reason + ")"
	}
	s.send(ctx, sum.Origin, 4, head+" "+jobTitle(sum.JobSnapshot)+"\n"+jobResult(sum))
}

func (s *chatSink) Failed(ctx context.Context, sum poster.Summary) {
	text := "Job " + jobTitle(sum.JobSnapshot) + " failed: " + sum.Reason
	if sum.Err != nil {
		text += "\n" + describeErr(sum.Err)
	}
	s.send(ctx, sum.Origin, 9, text+"\n"+jobResult(sum))
}

func (s *chatSink) send(ctx context.Context, o poster.Origin, prio int, text string) {
	if o.ChatID == 0 {
		return
	}
	to := transport.ChatTarget{ChatID: o.ChatID, ThreadID: o.ThreadID}
	opt := &transport.SendOptions{DisablePreview: true}
	if s.notify != nil {
		err := s.notify.Notify(ctx, transport.Notification{Source: "job", Priority: prio, Target: to, Text: text, Options: opt})
		if err == nil {
			return
		}
		if !errors.Is(err, notifier.ErrDisabled) && !errors.Is(err, notifier.ErrStopped) {
			s.log.Warn("job message not queued", logx.Int64("chat_id", o.ChatID), logx.Err(err))
			return
		}
	}
	if s.adapter == nil {
		return
	}
	if _, err := s.adapter.SendText(ctx, to, text, opt); err != nil {
		s.log.Warn("job message not sent", logx.Int64("chat_id", o.ChatID), logx.Err(err))
	}
}

func jobTitle(j poster.JobSnapshot) string {
	if j.Label != "" {
		return j.Label + " [" + j.Key + "]"
	}
	return "[" + j.Key + "]"
}

func isChatKey(key string) bool { return strings.HasPrefix(key, string(poster.ClassChat)+":") }

func jobPlan(j poster.JobSnapshot) string {
	ids := make([]string, 0, len(j.Targets))
	for _, t := range j.Targets {
		ids = append(ids, t.String())
	}
	plan := fmt.Sprintf("groups: %s, posts: %d", strings.Join(ids, ","), j.Total)
	if j.Class == poster.ClassChat {
		plan = fmt.Sprintf("chats: %s, messages: %d", strings.Join(ids, ","), j.Total)
	}
	if j.Total > len(j.Targets) && j.Interval > 0 {
		plan += ", every " + j.Interval.String()
	}
	if j.RetractAfter > 0 {
		plan += ", deleted after " + j.RetractAfter.String()
	}
	return plan
}

func jobResult(sum poster.Summary) string {
	text := fmt.Sprintf("ok %d, failed %d of %d attempted (planned %d)",
		sum.Progress.Succeeded, sum.Progress.Failed, sum.Progress.Attempted, sum.Total)
	if sum.LastLocator != "" {
		text += "\n" + sum.LastLocator
	}
	return text
}

// describeErr turns poster error kinds into operator advice.
func describeErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, poster.ErrUnauthenticated):
		return "VK token is missing or invalid, set a new one with /token"
	case errors.Is(err, poster.ErrRateLimited):
		return "VK rate limit hit, try a longer interval"
	case errors.Is(err, poster.ErrNotFound):
		return "post not found"
	case errors.Is(err, poster.ErrForbidden):
		return "no permission to delete it"
	default:
		return err.Error()
	}
}
