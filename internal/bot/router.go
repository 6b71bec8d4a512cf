package bot

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"vkrelay/internal/poster"
	rtsup "vkrelay/internal/runtime/supervisor"
	"vkrelay/internal/storage"
	"vkrelay/internal/transport"
	"vkrelay/internal/vk"
	"vkrelay/pkg/logx"
)

// Jobs is the subset of *poster.Registry the commands drive.
type Jobs interface {
	Submit(spec poster.JobSpec, sink poster.Sink) (poster.JobHandle, error)
	RequestStop(key string) bool
	RequestStopAll() int
	Status(key string) (poster.JobSnapshot, bool)
	ListActive() []poster.JobSnapshot
	Recent(n int) []poster.JobSnapshot
}

// Wall is the direct VK access used outside of jobs.
type Wall interface {
	Retract(ctx context.Context, target poster.Target, h poster.PostHandle) error
	Validate(ctx context.Context, token string) (vk.AccountInfo, error)
}

type Credentials interface {
	Current() (token string, ok bool)
	Set(token string)
	Clear()
	Info() vk.CredentialInfo
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

type Deps struct {
	Adapter  transport.Adapter
	Jobs     Jobs
	Wall     Wall
	Cred     Credentials
	Notifier Notifier // optional; job messages fall back to Adapter
	Audit    AuditLog // optional
	Settings *Settings
	Owners   []int64
	Logger   logx.Logger
}

const (
	defaultWorkers    = 4
	jobQueueCap       = 256
	defaultCmdTimeout = 30 * time.Second
)

// Router parses chat commands and runs them on a small worker pool.
type Router struct {
	mu     sync.RWMutex
	owners []int64
	cmds   map[string]*Command // name and aliases
	list   []*Command          // registration order, for /help

	adapter  transport.Adapter
	jobs     Jobs
	wall     Wall
	cred     Credentials
	audit    AuditLog
	settings *Settings
	sink     *chatSink
	log      logx.Logger

	queue chan func(ctx context.Context)
}

func New(d Deps) *Router {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "bot"))
	if d.Settings == nil {
		d.Settings = NewSettings(SettingsConfig{})
	}
	r := &Router{
		adapter:  d.Adapter,
		jobs:     d.Jobs,
		wall:     d.Wall,
		cred:     d.Cred,
		audit:    d.Audit,
		settings: d.Settings,
		log:      log,
		sink:     &chatSink{notify: d.Notifier, adapter: d.Adapter, log: log},
		queue:    make(chan func(ctx context.Context), jobQueueCap),
	}
	r.SetOwners(d.Owners)
	r.register(r.commands())
	return r
}

// Sink is the job event sink used by every command-started job.
func (r *Router) Sink() poster.Sink { return r.sink }

// SetOwners replaces the owner list. Safe to call during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	if len(cp) == 0 {
		r.log.Warn("telegram.owner_user_ids is empty, every user may run commands")
	}
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners) == 0 || slices.Contains(r.owners, id)
}

func (r *Router) register(cmds []Command) {
	byName := map[string]*Command{}
	list := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		if c.Name == "" || c.Handle == nil {
			continue
		}
		byName[c.Name] = c
		for _, a := range c.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				byName[a] = c
			}
		}
		list = append(list, c)
	}
	r.mu.Lock()
	r.cmds = byName
	r.list = list
	r.mu.Unlock()
}

// MenuCommands lists commands for the Telegram menu.
func (r *Router) MenuCommands() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(r.list))
	for _, c := range r.list {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Run dispatches updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log))
	for i := 0; i < defaultWorkers; i++ {
		sup.Go0(fmt.Sprintf("bot.worker.%d", i), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job := <-r.queue:
					job(c)
				}
			}
		})
	}
	r.log.Info("command dispatcher started", logx.Int("workers", defaultWorkers), logx.Int("queue_cap", cap(r.queue)))
	defer func() {
		sup.Cancel()
		_ = sup.Wait(context.Background())
		r.log.Info("command dispatcher stopped")
	}()

	if mu, ok := r.adapter.(transport.CommandMenuUpdater); ok {
		if err := mu.UpdateMenuCommands(ctx, r.MenuCommands()); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.routeMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		// No inline keyboards; just stop the client spinner.
		if up.Callback != nil {
			_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "")
		}
	}
}

func (r *Router) routeMessage(ctx context.Context, msg *transport.Message) {
	word, rest, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	cmd, found := r.cmds[word]
	r.mu.RUnlock()
	if !found {
		_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		r.log.Warn("unauthorized command", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Name))
		_, _ = r.adapter.SendText(ctx, chat, "⛔ Unauthorized", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Chat:     chat,
		FromID:   msg.FromID,
		FromName: msg.FromUsername,
		Command:  cmd.Name,
		Raw:      rest,
		ReqID:    rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCmdTimeout
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))

	select {
	case r.queue <- func(c context.Context) {
		if err := final(c, req); err != nil {
			r.reply(c, req, "❌ "+err.Error())
		}
	}:
	default:
		_, _ = r.adapter.SendText(ctx, chat, "Busy, try again", nil)
	}
}

func (r *Router) reply(ctx context.Context, req *Request, text string) {
	if _, err := r.adapter.SendText(ctx, req.Chat, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

func (r *Router) record(ctx context.Context, req *Request, e storage.AuditEntry) {
	if r.audit == nil {
		return
	}
	e.At = time.Now()
	e.ActorID = req.FromID
	e.ActorUsername = req.FromName
	e.ChatID = req.Chat.ChatID
	if err := r.audit.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		req.Logger.Warn("audit append failed", logx.Err(err))
	}
}
