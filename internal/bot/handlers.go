package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"vkrelay/internal/poster"
	"vkrelay/internal/storage"
	"vkrelay/internal/vk"
	"vkrelay/pkg/logx"
)

const (
	recentJobsShown  = 5
	historyDefault   = 10
	historyMax       = 50
	tokenValidateTTL = 15 * time.Second
)

func (r *Router) commands() []Command {
	return []Command{
		{Name: "start", Description: "welcome and usage", Access: AccessEveryone, Handle: r.cmdStart},
		{Name: "help", Aliases: []string{"h"}, Description: "show help", Usage: "/help [command]", Access: AccessEveryone, Handle: r.cmdHelp},
		{
			Name:        "post",
			Description: "publish one post",
			Usage:       "/post <group> [text]",
			Access:      AccessOwnerOnly,
			Handle:      r.cmdPost,
		},
		{
			Name:        "multi",
			Description: "publish a series of posts to one or more groups",
			Usage:       "/multi <g1,g2,...> <count> <interval> [text]",
			Access:      AccessOwnerOnly,
			Handle:      r.cmdMulti,
		},
		{
			Name:        "periodic",
			Description: "repost on a schedule, deleting the previous post",
			Usage:       "/periodic <group> <interval> [count] [text]",
			Access:      AccessOwnerOnly,
			Handle:      r.cmdPeriodic,
		},
		{
			Name:        "delete",
			Description: "delete a wall post",
			Usage:       "/delete <group> <post_id> | /delete <wall link>",
			Access:      AccessOwnerOnly,
			Handle:      r.cmdDelete,
		},
		{
			Name:        "spamgroups",
			Description: "repost to every saved group on the round delay",
			Usage:       "/spamgroups [text]",
			Access:      AccessOwnerOnly,
			Timeout:     tokenValidateTTL,
			Handle:      r.cmdSpamGroups,
		},
		{
			Name:        "spamchats",
			Description: "send to every saved chat and delete after the delete delay",
			Usage:       "/spamchats [count] [text]",
			Access:      AccessOwnerOnly,
			Timeout:     tokenValidateTTL,
			Handle:      r.cmdSpamChats,
		},
		{Name: "lists", Aliases: []string{"groups", "chats"}, Description: "saved groups and chats", Access: AccessOwnerOnly, Handle: r.cmdLists},
		{
			Name:        "addchat",
			Aliases:     []string{"add"},
			Description: "save a group (negative id or club link) or a chat (peer id)",
			Usage:       "/addchat <-group|club123|peer_id>",
			Access:      AccessOwnerOnly,
			Handle:      r.cmdAddChat,
		},
		{
			Name:        "rmchat",
			Aliases:     []string{"rm"},
			Description: "remove a saved group or chat",
			Usage:       "/rmchat <-group|club123|peer_id>",
			Access:      AccessOwnerOnly,
			Handle:      r.cmdRemoveChat,
		},
		{Name: "delay", Description: "show or set the round delay", Usage: "/delay [seconds|duration]", Access: AccessOwnerOnly, Handle: r.cmdDelay},
		{Name: "deletetime", Description: "show or set how long chat messages stay", Usage: "/deletetime [seconds|duration]", Access: AccessOwnerOnly, Handle: r.cmdDeleteTime},
		{Name: "stop", Description: "stop a job", Usage: "/stop <key|group>", Access: AccessOwnerOnly, Handle: r.cmdStop},
		{Name: "stopall", Description: "stop every job", Access: AccessOwnerOnly, Handle: r.cmdStopAll},
		{Name: "status", Description: "jobs and token state", Usage: "/status [key|group]", Access: AccessOwnerOnly, Handle: r.cmdStatus},
		{
			Name:        "token",
			Description: "validate and set the VK token",
			Usage:       "/token <token>",
			Access:      AccessOwnerOnly,
			Timeout:     tokenValidateTTL,
			Handle:      r.cmdToken,
		},
		{Name: "cleartoken", Description: "forget the VK token", Access: AccessOwnerOnly, Handle: r.cmdClearToken},
		{Name: "template", Description: "show or set the default post text", Usage: "/template [text]", Access: AccessOwnerOnly, Handle: r.cmdTemplate},
		{Name: "history", Description: "recent audit entries", Usage: "/history [n]", Access: AccessOwnerOnly, Handle: r.cmdHistory},
	}
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	r.reply(ctx, req, "👋 vkrelay posts to VK community walls.\n\n"+r.helpText(""))
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	name := ""
	if len(args) == 1 {
		name = strings.TrimPrefix(args[0], "/")
	}
	r.reply(ctx, req, r.helpText(name))
	return nil
}

func (r *Router) helpText(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		lines := []string{"📚 Commands (use /help <command>):"}
		for _, c := range r.list {
			lines = append(lines, "/"+c.Name+" — "+c.Description)
		}
		lines = append(lines, "", "Intervals: 90s, 5m, 1h30m or a bare number of minutes.")
		return strings.Join(lines, "\n")
	}
	c, ok := r.cmds[strings.ToLower(name)]
	if !ok {
		return "Command not found. Try /help"
	}
	lines := []string{"📌 /" + c.Name, c.Description}
	if c.Usage != "" {
		lines = append(lines, "Usage: "+c.Usage)
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, "Aliases: /"+strings.Join(c.Aliases, ", /"))
	}
	return strings.Join(lines, "\n")
}

func (r *Router) origin(req *Request) poster.Origin {
	return poster.Origin{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, ActorID: req.FromID, ActorName: req.FromName}
}

func usage(u string) error { return errors.New("usage: " + u) }

func (r *Router) cmdPost(ctx context.Context, req *Request) error {
	args, text := splitArgs(req.Raw, 1)
	if len(args) < 1 {
		return usage("/post <group> [text]")
	}
	t, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	return r.submit(ctx, req, poster.JobSpec{
		Class:       poster.ClassBulk,
		Targets:     []poster.Target{t},
		Payload:     r.settings.payload(text),
		RepeatCount: 1,
		Label:       "post",
	})
}

func (r *Router) cmdMulti(ctx context.Context, req *Request) error {
	const u = "/multi <g1,g2,...> <count> <interval> [text]"
	args, text := splitArgs(req.Raw, 3)
	if len(args) < 3 {
		return usage(u)
	}
	targets, err := parseTargets(args[0])
	if err != nil {
		return err
	}
	count, err := parseCount(args[1])
	if err != nil {
		return err
	}
	every, err := parseInterval(args[2])
	if err != nil {
		return err
	}
	return r.submit(ctx, req, poster.JobSpec{
		Class:       poster.ClassBulk,
		Targets:     targets,
		Payload:     r.settings.payload(text),
		RepeatCount: count,
		Interval:    every,
		Label:       "multi",
	})
}

// cmdPeriodic treats a third word that is a positive integer as the count.
func (r *Router) cmdPeriodic(ctx context.Context, req *Request) error {
	const u = "/periodic <group> <interval> [count] [text]"
	args, text := splitArgs(req.Raw, 2)
	if len(args) < 2 {
		return usage(u)
	}
	t, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	every, err := parseInterval(args[1])
	if err != nil {
		return err
	}
	if every <= 0 {
		every = r.settings.DefaultInterval()
	}
	count := r.settings.PeriodicMaxRepeats()
	if more, rest := splitArgs(text, 1); len(more) == 1 && looksLikeCount(more[0]) {
		count, _ = strconv.Atoi(more[0])
		text = rest
	}
	return r.submit(ctx, req, poster.JobSpec{
		Class:       poster.ClassPeriodic,
		Targets:     []poster.Target{t},
		Payload:     r.settings.payload(text),
		RepeatCount: count,
		Interval:    every,
		Replace:     true,
		Label:       "periodic",
	})
}

func (r *Router) submit(ctx context.Context, req *Request, spec poster.JobSpec) error {
	if strings.TrimSpace(spec.Payload) == "" {
		return errors.New("no text given and no template set (see /template)")
	}
	if !r.cred.Info().Set {
		return errors.New("VK token is not set, use /token first")
	}
	h, err := r.start(req, spec)
	if err != nil {
		return err
	}
	r.reply(ctx, req, fmt.Sprintf("🚀 Job %s queued. Stop it with /stop %s", h.Key, h.Key))
	return nil
}

// start submits spec on behalf of req and turns registry errors into
// operator messages.
func (r *Router) start(req *Request, spec poster.JobSpec) (poster.JobHandle, error) {
	spec.Origin = r.origin(req)
	h, err := r.jobs.Submit(spec, r.sink)
	switch {
	case errors.Is(err, poster.ErrAlreadyRunning):
		return h, fmt.Errorf("job %s is already running, /stop %s first", spec.Key(), spec.Key())
	case errors.Is(err, poster.ErrClosed):
		return h, errors.New("shutting down, not accepting jobs")
	case err != nil:
		return h, err
	}
	req.Logger.Info("job submitted", logx.String("key", h.Key), logx.String("run_id", h.RunID))
	return h, nil
}

// checkToken validates the current token before a bulk start so a dead
// token fails once instead of once per job.
func (r *Router) checkToken(ctx context.Context) error {
	tok, ok := r.cred.Current()
	if !ok {
		return errors.New("VK token is not set, use /token first")
	}
	if _, err := r.wall.Validate(ctx, tok); err != nil {
		return errors.New("VK token check failed: " + describeErr(err))
	}
	return nil
}

// cmdSpamGroups starts one replace-mode periodic job per saved group.
func (r *Router) cmdSpamGroups(ctx context.Context, req *Request) error {
	groups := r.settings.Groups()
	if len(groups) == 0 {
		return errors.New("no saved groups, add one with /addchat -<group id>")
	}
	payload := r.settings.payload(req.Raw)
	if payload == "" {
		return errors.New("no text given and no template set (see /template)")
	}
	if err := r.checkToken(ctx); err != nil {
		return err
	}
	every := r.settings.DefaultInterval()
	var queued, failed []string
	for _, g := range groups {
		h, err := r.start(req, poster.JobSpec{
			Class:       poster.ClassPeriodic,
			Targets:     []poster.Target{g},
			Payload:     payload,
			RepeatCount: r.settings.PeriodicMaxRepeats(),
			Interval:    every,
			Replace:     true,
			Label:       "spamgroups",
		})
		if err != nil {
			failed = append(failed, g.String()+": "+err.Error())
			continue
		}
		queued = append(queued, h.Key)
	}
	r.record(ctx, req, storage.AuditEntry{Action: "spamgroups", Target: strings.Join(queued, ","), Attempted: len(groups)})
	lines := []string{fmt.Sprintf("🚀 Queued %d of %d group job(s), every %s", len(queued), len(groups), every)}
	if len(queued) > 0 {
		lines = append(lines, strings.Join(queued, ", "))
	}
	for _, f := range failed {
		lines = append(lines, "❌ "+f)
	}
	if len(queued) > 0 {
		lines = append(lines, "Stop with /stopall or /stop <key>")
	}
	r.reply(ctx, req, strings.Join(lines, "\n"))
	return nil
}

// cmdSpamChats starts one chat job over every saved chat. Each message is
// deleted for everyone after the delete delay.
func (r *Router) cmdSpamChats(ctx context.Context, req *Request) error {
	chats := r.settings.Chats()
	if len(chats) == 0 {
		return errors.New("no saved chats, add one with /addchat <peer id>")
	}
	count, text := 1, req.Raw
	if args, rest := splitArgs(text, 1); len(args) == 1 && looksLikeCount(args[0]) {
		count, _ = strconv.Atoi(args[0])
		text = rest
	}
	payload := r.settings.payload(text)
	if payload == "" {
		return errors.New("no text given and no template set (see /template)")
	}
	if err := r.checkToken(ctx); err != nil {
		return err
	}
	spec := poster.JobSpec{
		Class:        poster.ClassChat,
		Targets:      chats,
		Payload:      payload,
		RepeatCount:  count,
		Interval:     r.settings.DefaultInterval(),
		RetractAfter: r.settings.DeleteDelay(),
		Label:        "spamchats",
	}
	h, err := r.start(req, spec)
	if err != nil {
		return err
	}
	r.reply(ctx, req, fmt.Sprintf("🚀 Job %s queued for %d chat(s), deleting after %s. Stop it with /stop %s",
		h.Key, len(chats), spec.RetractAfter, h.Key))
	return nil
}

func (r *Router) cmdLists(ctx context.Context, req *Request) error {
	r.reply(ctx, req, savedLists(r.settings.Groups(), r.settings.Chats()))
	return nil
}

func savedLists(groups, chats []poster.Target) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Groups (%d):", len(groups))
	for _, g := range groups {
		b.WriteString("\n• " + g.String())
	}
	fmt.Fprintf(&b, "\n💬 Chats (%d):", len(chats))
	for _, c := range chats {
		b.WriteString("\n• " + c.String())
	}
	return b.String()
}

func (r *Router) cmdAddChat(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	if len(args) == 0 {
		return usage("/addchat <-group|club123|peer_id>")
	}
	kind, t, err := parseSaved(args[0])
	if err != nil {
		return err
	}
	if !r.settings.AddSaved(kind, t) {
		r.reply(ctx, req, fmt.Sprintf("ℹ️ %s %s is already saved", kind, t))
		return nil
	}
	r.record(ctx, req, storage.AuditEntry{Action: "add." + kind.String(), Target: t.String()})
	r.reply(ctx, req, fmt.Sprintf("✅ Saved %s %s", kind, t))
	return nil
}

func (r *Router) cmdRemoveChat(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	if len(args) == 0 {
		return usage("/rmchat <-group|club123|peer_id>")
	}
	kind, t, err := parseSaved(args[0])
	if err != nil {
		return err
	}
	if !r.settings.RemoveSaved(kind, t) {
		r.reply(ctx, req, fmt.Sprintf("ℹ️ %s %s is not saved", kind, t))
		return nil
	}
	r.record(ctx, req, storage.AuditEntry{Action: "remove." + kind.String(), Target: t.String()})
	r.reply(ctx, req, fmt.Sprintf("🗑 Removed %s %s", kind, t))
	return nil
}

func (r *Router) cmdDelay(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	if len(args) == 0 {
		r.reply(ctx, req, "⏳ Round delay: "+r.settings.DefaultInterval().String())
		return nil
	}
	d, err := parseDelay(args[0])
	if err != nil {
		return err
	}
	r.settings.SetDefaultInterval(d)
	r.record(ctx, req, storage.AuditEntry{Action: "delay.set", Target: d.String()})
	r.reply(ctx, req, "✅ Round delay set to "+d.String())
	return nil
}

func (r *Router) cmdDeleteTime(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	if len(args) == 0 {
		r.reply(ctx, req, "🕒 Chat messages are deleted after "+r.settings.DeleteDelay().String())
		return nil
	}
	d, err := parseDelay(args[0])
	if err != nil {
		return err
	}
	r.settings.SetDeleteDelay(d)
	r.record(ctx, req, storage.AuditEntry{Action: "deletetime.set", Target: d.String()})
	r.reply(ctx, req, "✅ Chat messages will be deleted after "+d.String())
	return nil
}

func (r *Router) cmdDelete(ctx context.Context, req *Request) error {
	args, rest := splitArgs(req.Raw, 2)
	if rest != "" || len(args) == 0 {
		return usage("/delete <group> <post_id> | /delete <wall link>")
	}
	t, postID, err := parsePostRef(args)
	if err != nil {
		return err
	}
	err = r.wall.Retract(ctx, t, poster.PostHandle{PostID: postID})
	e := storage.AuditEntry{Action: "delete", Target: t.String() + "_" + strconv.FormatInt(postID, 10)}
	if err != nil {
		e.Error = err.Error()
	}
	r.record(ctx, req, e)
	if err != nil {
		return errors.New(describeErr(err))
	}
	r.reply(ctx, req, fmt.Sprintf("🗑 Deleted post %d from group %s", postID, t))
	return nil
}

func (r *Router) cmdStop(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	if len(args) == 0 {
		return usage("/stop <key|group>")
	}
	keys, err := candidateKeys(args[0])
	if err != nil {
		return err
	}
	var stopped []string
	for _, k := range keys {
		if r.jobs.RequestStop(k) {
			stopped = append(stopped, k)
			r.record(ctx, req, storage.AuditEntry{Action: "stop", JobKey: k})
		}
	}
	if len(stopped) == 0 {
		r.reply(ctx, req, "ℹ️ No running job "+strings.Join(keys, " or "))
		return nil
	}
	r.reply(ctx, req, "⏹ Stopping "+strings.Join(stopped, ", "))
	return nil
}

// candidateKeys returns arg when it is a job key, otherwise every key a
// job on that group or chat id could have.
func candidateKeys(arg string) ([]string, error) {
	if strings.Contains(arg, ":") {
		return []string{arg}, nil
	}
	t, err := parseTarget(arg)
	if err != nil {
		return nil, err
	}
	tt := []poster.Target{t}
	return []string{
		poster.KeyFor(poster.ClassPeriodic, tt),
		poster.KeyFor(poster.ClassBulk, tt),
		poster.KeyFor(poster.ClassChat, tt),
	}, nil
}

func (r *Router) cmdStopAll(ctx context.Context, req *Request) error {
	n := r.jobs.RequestStopAll()
	if n == 0 {
		r.reply(ctx, req, "ℹ️ No running jobs")
		return nil
	}
	r.record(ctx, req, storage.AuditEntry{Action: "stopall", Attempted: n})
	r.reply(ctx, req, fmt.Sprintf("⏹ Stopping %d job(s)", n))
	return nil
}

func (r *Router) cmdStatus(ctx context.Context, req *Request) error {
	if args, _ := splitArgs(req.Raw, 1); len(args) == 1 {
		return r.jobStatus(ctx, req, args[0])
	}
	var b strings.Builder
	info := r.cred.Info()
	if info.Set {
		fmt.Fprintf(&b, "🔑 VK token: %s (set %s)\n", info.Masked, humanize.Time(info.SetAt))
	} else {
		b.WriteString("🔑 VK token: not set\n")
	}

	active := r.jobs.ListActive()
	fmt.Fprintf(&b, "\n▶️ Active jobs: %d\n", len(active))
	for _, j := range active {
		fmt.Fprintf(&b, "• %s %s %d/%d (ok %d, failed %d), started %s",
			j.Key, j.State, j.Progress.Attempted, j.Total, j.Progress.Succeeded, j.Progress.Failed, humanize.Time(j.StartedAt))
		if j.Total > len(j.Targets) && j.Interval > 0 {
			fmt.Fprintf(&b, ", every %s", j.Interval)
		}
		if j.StopRequested {
			b.WriteString(", stopping")
		}
		b.WriteString("\n")
	}

	if recent := r.jobs.Recent(recentJobsShown); len(recent) > 0 {
		b.WriteString("\n🕘 Recent:\n")
		for _, j := range recent {
			fmt.Fprintf(&b, "• %s %s ok %d/%d, ended %s\n",
				j.Key, j.State, j.Progress.Succeeded, j.Total, humanize.Time(j.FinishedAt))
		}
	}
	fmt.Fprintf(&b, "\n📋 Saved: %d group(s), %d chat(s)\n⏳ Round delay: %s\n🕒 Delete after: %s\n",
		len(r.settings.Groups()), len(r.settings.Chats()), r.settings.DefaultInterval(), r.settings.DeleteDelay())
	if t := r.settings.Template(); t != "" {
		fmt.Fprintf(&b, "📝 Template: %d chars", len([]rune(t)))
	}
	r.reply(ctx, req, strings.TrimSpace(b.String()))
	return nil
}

// jobStatus shows one live job, looked up by key or by group id.
func (r *Router) jobStatus(ctx context.Context, req *Request, arg string) error {
	keys, err := candidateKeys(arg)
	if err != nil {
		return err
	}
	var found []poster.JobSnapshot
	for _, k := range keys {
		if j, ok := r.jobs.Status(k); ok {
			found = append(found, j)
		}
	}
	if len(found) == 0 {
		r.reply(ctx, req, "ℹ️ No running job "+strings.Join(keys, " or "))
		return nil
	}
	parts := make([]string, 0, len(found))
	for _, j := range found {
		parts = append(parts, jobDetail(j))
	}
	r.reply(ctx, req, strings.Join(parts, "\n\n"))
	return nil
}

func jobDetail(j poster.JobSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 %s\nstate: %s", jobTitle(j), j.State)
	if j.StopRequested {
		b.WriteString(" (stop requested)")
	}
	fmt.Fprintf(&b, "\n%s\nprogress: %d/%d, ok %d, failed %d\nstarted %s",
		jobPlan(j), j.Progress.Attempted, j.Total, j.Progress.Succeeded, j.Progress.Failed, humanize.Time(j.StartedAt))
	if j.Origin.ActorName != "" {
		b.WriteString(" by @" + j.Origin.ActorName)
	}
	b.WriteString("\nrun: " + j.RunID)
	if j.LastLocator != "" {
		b.WriteString("\nlast: " + j.LastLocator)
	}
	return b.String()
}

func (r *Router) cmdToken(ctx context.Context, req *Request) error {
	args, _ := splitArgs(req.Raw, 1)
	if len(args) == 0 {
		return usage("/token <token>")
	}
	token := args[0]
	acct, err := r.wall.Validate(ctx, token)
	if err != nil {
		r.record(ctx, req, storage.AuditEntry{Action: "token.rejected", Error: err.Error()})
		if errors.Is(err, poster.ErrUnauthenticated) {
			return errors.New("VK rejected this token, nothing changed")
		}
		return fmt.Errorf("could not validate token, nothing changed: %w", err)
	}
	r.cred.Set(token)
	r.record(ctx, req, storage.AuditEntry{Action: "token.set"})
	text := "✅ VK token set: " + vk.Mask(token)
	if acct.Country != "" {
		text += " (account country " + acct.Country + ")"
	}
	r.reply(ctx, req, text+"\nConsider deleting your message with the token.")
	return nil
}

func (r *Router) cmdClearToken(ctx context.Context, req *Request) error {
	r.cred.Clear()
	r.record(ctx, req, storage.AuditEntry{Action: "token.clear"})
	r.reply(ctx, req, "✅ VK token cleared. Running jobs will fail on their next post. Set a new one with /token")
	return nil
}

func (r *Router) cmdTemplate(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Raw)
	if text == "" {
		cur := r.settings.Template()
		if cur == "" {
			r.reply(ctx, req, "📝 No template set. Use /template <text>")
			return nil
		}
		r.reply(ctx, req, "📝 Current template:\n\n"+cur)
		return nil
	}
	r.settings.SetTemplate(text)
	r.record(ctx, req, storage.AuditEntry{Action: "template.set"})
	r.reply(ctx, req, "✅ Template updated")
	return nil
}

func (r *Router) cmdHistory(ctx context.Context, req *Request) error {
	if r.audit == nil {
		return errors.New("history is unavailable, storage is disabled")
	}
	n := historyDefault
	if args, _ := splitArgs(req.Raw, 1); len(args) == 1 {
		v, err := parseCount(args[0])
		if err != nil {
			return err
		}
		n = min(v, historyMax)
	}
	entries, err := r.audit.RecentAudit(ctx, n)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(entries) == 0 {
		r.reply(ctx, req, "🕘 History is empty")
		return nil
	}
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "🕘 Last "+strconv.Itoa(len(entries))+" entries:")
	for _, e := range entries {
		lines = append(lines, formatAudit(e))
	}
	r.reply(ctx, req, strings.Join(lines, "\n"))
	return nil
}

func formatAudit(e storage.AuditEntry) string {
	var b strings.Builder
	b.WriteString(e.At.Format("01-02 15:04"))
	b.WriteString(" " + e.Action)
	if e.JobKey != "" {
		b.WriteString(" " + e.JobKey)
	}
	if e.Target != "" {
		b.WriteString(" " + e.Target)
	}
	if e.Attempted > 0 && e.JobKey != "" {
		fmt.Fprintf(&b, " ok %d/%d", e.Succeeded, e.Attempted)
	}
	if e.ActorUsername != "" {
		b.WriteString(" by @" + e.ActorUsername)
	}
	if e.Error != "" {
		b.WriteString(" ❗" + e.Error)
	}
	return b.String()
}
