package poster

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type call struct {
	op     string
	target Target
	postID int64
}

type fakePoster struct {
	mu         sync.Mutex
	calls      []call
	published  int
	publishErr func(n int) error // n is the 1-based publish number
	retractErr error
	// onPublish runs outside the lock before the publish returns.
	onPublish func(t Target)
}

func (f *fakePoster) Publish(ctx context.Context, t Target, payload string) (PostHandle, error) {
	f.mu.Lock()
	f.published++
	n := f.published
	f.calls = append(f.calls, call{op: "publish", target: t})
	var err error
	if f.publishErr != nil {
		err = f.publishErr(n)
	}
	hook := f.onPublish
	f.mu.Unlock()
	if hook != nil {
		hook(t)
	}
	if err != nil {
		return PostHandle{}, err
	}
	return PostHandle{PostID: int64(n), Locator: fmt.Sprintf("https://vk.com/wall-%d_%d", t, n)}, nil
}

func (f *fakePoster) Retract(ctx context.Context, t Target, h PostHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "retract", target: t, postID: h.PostID})
	return f.retractErr
}

func (f *fakePoster) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakePoster) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published
}

type recSink struct {
	mu       sync.Mutex
	started  int
	progress []Progress
	failures []AttemptFailure
	finals   []Summary
	kinds    []string

	onProgress  func(JobSnapshot)
	onCompleted func(Summary)

	done chan Summary
}

func newRecSink() *recSink { return &recSink{done: make(chan Summary, 1)} }

func (s *recSink) Started(ctx context.Context, job JobSnapshot) {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

func (s *recSink) Progress(ctx context.Context, job JobSnapshot) {
	s.mu.Lock()
	s.progress = append(s.progress, job.Progress)
	hook := s.onProgress
	s.mu.Unlock()
	if hook != nil {
		hook(job)
	}
}

func (s *recSink) AttemptFailed(ctx context.Context, f AttemptFailure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

func (s *recSink) Completed(ctx context.Context, sum Summary) { s.final("completed", sum) }
func (s *recSink) Failed(ctx context.Context, sum Summary)    { s.final("failed", sum) }

func (s *recSink) final(kind string, sum Summary) {
	s.mu.Lock()
	s.finals = append(s.finals, sum)
	s.kinds = append(s.kinds, kind)
	hook := s.onCompleted
	s.mu.Unlock()
	if hook != nil && kind == "completed" {
		hook(sum)
	}
	select {
	case s.done <- sum:
	default:
	}
}

func (s *recSink) wait(t *testing.T, d time.Duration) Summary {
	t.Helper()
	select {
	case sum := <-s.done:
		return sum
	case <-time.After(d):
		t.Fatalf("job did not finish within %s", d)
		return Summary{}
	}
}

func newTestRegistry(t *testing.T, p RemotePoster, opts Options) *Registry {
	t.Helper()
	r := NewRegistry(context.Background(), p, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

func chat(repeat int, retractAfter time.Duration, peers ...Target) JobSpec {
	return JobSpec{Class: ClassChat, Targets: peers, Payload: "hello", RepeatCount: repeat, RetractAfter: retractAfter}
}

func bulk(repeat int, interval time.Duration, targets ...Target) JobSpec {
	return JobSpec{Class: ClassBulk, Targets: targets, Payload: "hello", RepeatCount: repeat, Interval: interval}
}
