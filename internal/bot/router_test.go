package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vkrelay/internal/poster"
	"vkrelay/internal/storage"
	"vkrelay/internal/transport"
	"vkrelay/internal/vk"
	"vkrelay/pkg/logx"
)

type sentMsg struct {
	to   transport.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (a *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                           { return nil }
func (a *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sentMsg{to: to, text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.sent))
	for _, m := range a.sent {
		out = append(out, m.text)
	}
	return out
}

// waitText waits for a sent message containing substr.
func (a *fakeAdapter) waitText(t *testing.T, substr string) string {
	t.Helper()
	var found string
	require.Eventually(t, func() bool {
		for _, s := range a.texts() {
			if strings.Contains(s, substr) {
				found = s
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no message containing %q; got %q", substr, a.texts())
	return found
}

type fakeJobs struct {
	mu        sync.Mutex
	specs     []poster.JobSpec
	submitErr error
	stopped   []string
	running   map[string]bool
	snaps     map[string]poster.JobSnapshot
}

func (f *fakeJobs) Submit(spec poster.JobSpec, _ poster.Sink) (poster.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return poster.JobHandle{}, f.submitErr
	}
	f.specs = append(f.specs, spec)
	return poster.JobHandle{Key: spec.Key(), RunID: "run-1", StartedAt: time.Now()}, nil
}

func (f *fakeJobs) RequestStop(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[key] {
		return false
	}
	f.stopped = append(f.stopped, key)
	return true
}

func (f *fakeJobs) RequestStopAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}

func (f *fakeJobs) Status(key string) (poster.JobSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.snaps[key]
	return j, ok
}

func (f *fakeJobs) allSpecs() []poster.JobSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]poster.JobSpec(nil), f.specs...)
}

func (f *fakeJobs) ListActive() []poster.JobSnapshot { return nil }
func (f *fakeJobs) Recent(int) []poster.JobSnapshot  { return nil }

func (f *fakeJobs) lastSpec(t *testing.T) poster.JobSpec {
	t.Helper()
	var spec poster.JobSpec
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.specs) == 0 {
			return false
		}
		spec = f.specs[len(f.specs)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return spec
}

type fakeWall struct {
	mu         sync.Mutex
	retracted  []poster.PostHandle
	retractErr error
	goodToken  string
}

func (w *fakeWall) Retract(_ context.Context, _ poster.Target, h poster.PostHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retractErr != nil {
		return w.retractErr
	}
	w.retracted = append(w.retracted, h)
	return nil
}

func (w *fakeWall) Validate(_ context.Context, token string) (vk.AccountInfo, error) {
	if token != w.goodToken {
		return vk.AccountInfo{}, poster.ErrUnauthenticated
	}
	return vk.AccountInfo{Country: "RU"}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (m *memAudit) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) RecentAudit(_ context.Context, limit int) ([]storage.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []storage.AuditEntry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

const ownerID = 42

type harness struct {
	adapter *fakeAdapter
	jobs    *fakeJobs
	wall    *fakeWall
	cred    *vk.Credential
	audit   *memAudit
	router  *Router
	updates chan transport.Update
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		adapter: &fakeAdapter{},
		jobs:    &fakeJobs{running: map[string]bool{}},
		wall:    &fakeWall{goodToken: "vk1.good-token-123"},
		cred:    vk.NewCredential("vk1.initial-token"),
		audit:   &memAudit{},
		updates: make(chan transport.Update, 8),
	}
	h.router = New(Deps{
		Adapter:  h.adapter,
		Jobs:     h.jobs,
		Wall:     h.wall,
		Cred:     h.cred,
		Audit:    h.audit,
		Settings: NewSettings(SettingsConfig{Template: "default text", PeriodicMaxRepeats: 100, DefaultInterval: time.Minute}),
		Owners:   []int64{ownerID},
		Logger:   logx.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.router.Run(ctx, h.updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) send(from int64, text string) {
	h.updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 7, FromID: from, FromUsername: "op", Text: text}}
}

func TestOwnerOnly(t *testing.T) {
	h := newHarness(t)
	h.send(99, "/post 100 hi")
	h.adapter.waitText(t, "Unauthorized")

	h.send(99, "/help")
	h.adapter.waitText(t, "/periodic")
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/nope")
	h.adapter.waitText(t, "Unknown command")
}

func TestPostSubmitsSingleBulkJob(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/post club100 hello\nworld")
	spec := h.jobs.lastSpec(t)
	require.Equal(t, poster.ClassBulk, spec.Class)
	require.Equal(t, []poster.Target{100}, spec.Targets)
	require.Equal(t, "hello\nworld", spec.Payload)
	require.Equal(t, 1, spec.RepeatCount)
	require.Equal(t, int64(7), spec.Origin.ChatID)
	require.Equal(t, int64(ownerID), spec.Origin.ActorID)
	h.adapter.waitText(t, "bulk:100 queued")
}

func TestPostFallsBackToTemplate(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/post 100")
	require.Equal(t, "default text", h.jobs.lastSpec(t).Payload)
}

func TestMulti(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/multi 100,200 3 2 spam")
	spec := h.jobs.lastSpec(t)
	require.Equal(t, []poster.Target{100, 200}, spec.Targets)
	require.Equal(t, 3, spec.RepeatCount)
	require.Equal(t, 2*time.Minute, spec.Interval)
	require.Equal(t, "spam", spec.Payload)

	h.send(ownerID, "/multi 100,200 3")
	h.adapter.waitText(t, "usage: /multi")
}

func TestPeriodic(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/periodic 100 30s 12 text")
	spec := h.jobs.lastSpec(t)
	require.Equal(t, poster.ClassPeriodic, spec.Class)
	require.True(t, spec.Replace)
	require.Equal(t, 12, spec.RepeatCount)
	require.Equal(t, 30*time.Second, spec.Interval)
	require.Equal(t, "text", spec.Payload)
}

func TestPeriodicDefaultsCount(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/periodic 100 5m")
	spec := h.jobs.lastSpec(t)
	require.Equal(t, 100, spec.RepeatCount)
	require.Equal(t, "default text", spec.Payload)
}

func TestSubmitErrors(t *testing.T) {
	h := newHarness(t)
	h.jobs.submitErr = poster.ErrAlreadyRunning
	h.send(ownerID, "/post 100 x")
	h.adapter.waitText(t, "already running")
}

func TestSubmitRequiresToken(t *testing.T) {
	h := newHarness(t)
	h.cred.Clear()
	h.send(ownerID, "/post 100 x")
	h.adapter.waitText(t, "VK token is not set")
	require.Empty(t, h.jobs.specs)
}

func TestStopByGroup(t *testing.T) {
	h := newHarness(t)
	h.jobs.running["periodic:100"] = true
	h.send(ownerID, "/stop 100")
	h.adapter.waitText(t, "Stopping periodic:100")
	require.Contains(t, h.audit.actions(), "stop")

	h.send(ownerID, "/stop bulk:5")
	h.adapter.waitText(t, "No running job bulk:5")
}

func TestTokenValidatesBeforeSet(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/token wrong")
	h.adapter.waitText(t, "rejected this token")
	tok, _ := h.cred.Current()
	require.Equal(t, "vk1.initial-token", tok)

	h.send(ownerID, "/token vk1.good-token-123")
	h.adapter.waitText(t, "VK token set")
	tok, _ = h.cred.Current()
	require.Equal(t, "vk1.good-token-123", tok)
	require.Equal(t, []string{"token.rejected", "token.set"}, h.audit.actions())
}

func TestClearToken(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/cleartoken")
	h.adapter.waitText(t, "cleared")
	_, ok := h.cred.Current()
	require.False(t, ok)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/delete https://vk.com/wall-100_55")
	h.adapter.waitText(t, "Deleted post 55")
	require.Equal(t, []poster.PostHandle{{PostID: 55}}, h.wall.retracted)

	h.wall.retractErr = fmt.Errorf("vk wall.delete: %w", poster.ErrNotFound)
	h.send(ownerID, "/delete 100 56")
	h.adapter.waitText(t, "post not found")
}

func TestTemplateAndHistory(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/template new text")
	h.adapter.waitText(t, "Template updated")
	require.Equal(t, "new text", h.router.settings.Template())

	// A config reload keeps the chat override.
	h.router.settings.Apply(SettingsConfig{Template: "from config"})
	require.Equal(t, "new text", h.router.settings.Template())

	h.send(ownerID, "/history")
	h.adapter.waitText(t, "template.set by @op")
}

func TestStatusShowsToken(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/status")
	msg := h.adapter.waitText(t, "VK token")
	require.Contains(t, msg, vk.Mask("vk1.initial-token"))
	require.Contains(t, msg, "Active jobs: 0")
	require.Contains(t, msg, "Saved: 0 group(s), 0 chat(s)")
	require.Contains(t, msg, "Delete after: 10s")
}

func TestStatusForOneJob(t *testing.T) {
	h := newHarness(t)
	h.jobs.snaps = map[string]poster.JobSnapshot{
		"periodic:100": {
			Key: "periodic:100", RunID: "run-9", Class: poster.ClassPeriodic, Label: "periodic",
			Targets: []poster.Target{100}, State: poster.StateRunning, Total: 10, Interval: 5 * time.Minute,
			Progress:    poster.Progress{Attempted: 3, Succeeded: 2, Failed: 1},
			Origin:      poster.Origin{ActorName: "op"},
			LastLocator: "https://vk.com/wall-100_7",
			StartedAt:   time.Now().Add(-time.Minute),
		},
	}

	h.send(ownerID, "/status periodic:100")
	msg := h.adapter.waitText(t, "periodic [periodic:100]")
	require.Contains(t, msg, "state: running")
	require.Contains(t, msg, "progress: 3/10, ok 2, failed 1")
	require.Contains(t, msg, "every 5m0s")
	require.Contains(t, msg, "by @op")
	require.Contains(t, msg, "run: run-9")
	require.Contains(t, msg, "https://vk.com/wall-100_7")
	require.NotContains(t, msg, "VK token")

	h.send(ownerID, "/status 200")
	h.adapter.waitText(t, "No running job periodic:200 or bulk:200 or chat:200")
}

func TestSavedListsEditing(t *testing.T) {
	h := newHarness(t)
	h.send(ownerID, "/addchat -100")
	h.adapter.waitText(t, "Saved group 100")
	h.send(ownerID, "/add 2000000001")
	h.adapter.waitText(t, "Saved chat 2000000001")
	h.send(ownerID, "/addchat club100")
	h.adapter.waitText(t, "group 100 is already saved")

	h.send(ownerID, "/groups")
	msg := h.adapter.waitText(t, "Groups (1)")
	require.Contains(t, msg, "Chats (1):\n• 2000000001")

	h.send(ownerID, "/rmchat 2000000001")
	h.adapter.waitText(t, "Removed chat 2000000001")
	h.send(ownerID, "/rm 5")
	h.adapter.waitText(t, "chat 5 is not saved")
	require.Equal(t, []poster.Target{100}, h.router.settings.Groups())
	require.Empty(t, h.router.settings.Chats())
	require.Contains(t, h.audit.actions(), "add.group")
	require.Contains(t, h.audit.actions(), "remove.chat")

	// Chat edits survive a config reload.
	h.router.settings.Apply(SettingsConfig{Groups: []poster.Target{1, 2}})
	require.Equal(t, []poster.Target{100}, h.router.settings.Groups())
}

func TestSpamGroupsStartsJobPerGroup(t *testing.T) {
	h := newHarness(t)
	h.cred.Set("vk1.good-token-123")
	h.router.settings.AddSaved(savedGroup, 100)
	h.router.settings.AddSaved(savedGroup, 200)

	h.send(ownerID, "/spamgroups hot offer")
	msg := h.adapter.waitText(t, "Queued 2 of 2 group job(s)")
	require.Contains(t, msg, "periodic:100, periodic:200")

	specs := h.jobs.allSpecs()
	require.Len(t, specs, 2)
	for i, g := range []poster.Target{100, 200} {
		require.Equal(t, poster.ClassPeriodic, specs[i].Class)
		require.Equal(t, []poster.Target{g}, specs[i].Targets)
		require.True(t, specs[i].Replace)
		require.Equal(t, time.Minute, specs[i].Interval)
		require.Equal(t, 100, specs[i].RepeatCount)
		require.Equal(t, "hot offer", specs[i].Payload)
	}
}

func TestSpamGroupsChecksTokenFirst(t *testing.T) {
	h := newHarness(t)
	h.router.settings.AddSaved(savedGroup, 100)
	h.send(ownerID, "/spamgroups")
	h.adapter.waitText(t, "VK token check failed")
	require.Empty(t, h.jobs.allSpecs())

	h.router.settings.RemoveSaved(savedGroup, 100)
	h.send(ownerID, "/spamgroups")
	h.adapter.waitText(t, "no saved groups")
}

func TestSpamChatsUsesDeleteDelay(t *testing.T) {
	h := newHarness(t)
	h.cred.Set("vk1.good-token-123")
	h.router.settings.AddSaved(savedChat, 2000000001)
	h.router.settings.AddSaved(savedChat, 2000000002)

	h.send(ownerID, "/deletetime 30")
	h.adapter.waitText(t, "deleted after 30s")
	h.send(ownerID, "/delay 2m")
	h.adapter.waitText(t, "Round delay set to 2m0s")

	h.send(ownerID, "/spamchats 3 hi all")
	spec := h.jobs.lastSpec(t)
	require.Equal(t, poster.ClassChat, spec.Class)
	require.Equal(t, []poster.Target{2000000001, 2000000002}, spec.Targets)
	require.Equal(t, 3, spec.RepeatCount)
	require.Equal(t, 2*time.Minute, spec.Interval)
	require.Equal(t, 30*time.Second, spec.RetractAfter)
	require.Equal(t, "hi all", spec.Payload)
	h.adapter.waitText(t, "chat:2000000001 queued for 2 chat(s)")

	h.send(ownerID, "/deletetime -1")
	h.adapter.waitText(t, "delay must be positive")
}

func TestAttemptFailedNumbersPostsFromOne(t *testing.T) {
	a := &fakeAdapter{}
	s := &chatSink{adapter: a, log: logx.Nop()}
	origin := poster.Origin{ChatID: 9}
	s.AttemptFailed(context.Background(), poster.AttemptFailure{Key: "bulk:100", Origin: origin, Target: 100, Tick: 0, Err: poster.ErrRejected})
	s.AttemptFailed(context.Background(), poster.AttemptFailure{Key: "chat:5", Origin: origin, Target: 5, Tick: 2, Err: poster.ErrRejected})
	s.AttemptFailed(context.Background(), poster.AttemptFailure{Key: "chat:5", Origin: origin, Target: 5, Tick: 2, Retract: true, Err: poster.ErrForbidden})

	texts := a.texts()
	require.Len(t, texts, 3)
	require.True(t, strings.HasPrefix(texts[0], "Post 1 to group 100 failed"), texts[0])
	require.True(t, strings.HasPrefix(texts[1], "Message 3 to chat 5 failed"), texts[1])
	require.True(t, strings.HasPrefix(texts[2], "Could not delete message 3 in chat 5"), texts[2])
}

func TestChatSinkRoutesToOrigin(t *testing.T) {
	a := &fakeAdapter{}
	s := &chatSink{adapter: a, log: logx.Nop()}
	origin := poster.Origin{ChatID: 9, ThreadID: 3}
	s.Completed(context.Background(), poster.Summary{
		JobSnapshot: poster.JobSnapshot{
			Key: "bulk:1", Origin: origin, Total: 2, LastLocator: "https://vk.com/wall-1_2",
			Progress: poster.Progress{Attempted: 2, Succeeded: 2},
		},
	})
	s.Failed(context.Background(), poster.Summary{
		JobSnapshot: poster.JobSnapshot{Key: "bulk:2", Origin: origin},
		Reason:      "unauthenticated",
		Err:         poster.ErrUnauthenticated,
	})
	// No origin chat: dropped.
	s.Progress(context.Background(), poster.JobSnapshot{Key: "bulk:3"})

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.sent, 2)
	require.Equal(t, transport.ChatTarget{ChatID: 9, ThreadID: 3}, a.sent[0].to)
	require.Contains(t, a.sent[0].text, "Finished [bulk:1]")
	require.Contains(t, a.sent[0].text, "https://vk.com/wall-1_2")
	require.Contains(t, a.sent[1].text, "/token")
}

// A real registry drives the sink end to end.
func TestJobEventsReachChat(t *testing.T) {
	a := &fakeAdapter{}
	reg := poster.NewRegistry(context.Background(), okPoster{}, poster.Options{})
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	r := New(Deps{
		Adapter: a, Jobs: reg, Wall: &fakeWall{}, Cred: vk.NewCredential("tok"),
		Owners: []int64{ownerID}, Logger: logx.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 7, FromID: ownerID, Text: "/post 100 hi"}}
	a.waitText(t, "Finished post [bulk:100]")
	a.waitText(t, "https://vk.com/wall-100_1")
}

// Chat jobs go through the registry's messenger.
func TestChatJobEventsReachChat(t *testing.T) {
	a := &fakeAdapter{}
	reg := poster.NewRegistry(context.Background(), okPoster{}, poster.Options{Messenger: okPoster{}})
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	settings := NewSettings(SettingsConfig{Template: "hi", DeleteDelay: 10 * time.Millisecond, Chats: []poster.Target{5}})
	r := New(Deps{
		Adapter: a, Jobs: reg, Wall: &fakeWall{goodToken: "tok"}, Cred: vk.NewCredential("tok"),
		Settings: settings, Owners: []int64{ownerID}, Logger: logx.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	updates <- transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: 7, FromID: ownerID, Text: "/spamchats"}}
	msg := a.waitText(t, "Started spamchats [chat:5]")
	require.Contains(t, msg, "chats: 5, messages: 1, deleted after 10ms")
	a.waitText(t, "Finished spamchats [chat:5]")
}

type okPoster struct{}

func (okPoster) Publish(_ context.Context, t poster.Target, _ string) (poster.PostHandle, error) {
	return poster.PostHandle{PostID: 1, Locator: vk.PostURL(t, 1)}, nil
}

func (okPoster) Retract(context.Context, poster.Target, poster.PostHandle) error { return nil }
