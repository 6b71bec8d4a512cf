package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vkrelay/internal/bot"
	"vkrelay/internal/config"
	"vkrelay/internal/eventbus"
	"vkrelay/internal/notifier"
	"vkrelay/internal/observability/httpserver"
	"vkrelay/internal/poster"
	rtsup "vkrelay/internal/runtime/supervisor"
	"vkrelay/internal/storage"
	"vkrelay/internal/transport"
	"vkrelay/internal/transport/telegram"
	"vkrelay/internal/vk"
	"vkrelay/pkg/logx"
)

const metricsNamespace = "vkrelay"

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter

	cred     *vk.Credential
	vk       *vk.Client
	jobs     *poster.Registry
	notif    *notifier.Service
	settings *bot.Settings
	router   *bot.Router
	http     *httpserver.Service
	probe    *tokenProber

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, config.DefaultPollTimeout),
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logSvc, root := logx.New(mapLogConfig(cfg), ad)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := storage.Open(mapStorageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cred := vk.NewCredential(cfg.VK.Token)
	vkc := vk.New(mapVKConfig(cfg, root), cred)

	jobs := poster.NewRegistry(context.Background(), vkc, poster.Options{
		Defaults:  mapPosterDefaults(cfg),
		Messenger: vkc.Messages(),
		Logger:    root,
		Metrics:   poster.NewMetrics(metricsNamespace, reg),
		Bus:       bus,
	})

	notif := notifier.New(mapNotifierConfig(cfg), ad, root.With(logx.String("comp", "notifier")), bus)

	settings := bot.NewSettings(mapSettings(cfg))
	deps := bot.Deps{
		Adapter:  ad,
		Jobs:     jobs,
		Wall:     vkc,
		Cred:     cred,
		Notifier: notif,
		Settings: settings,
		Owners:   cfg.Telegram.OwnerUserIDs,
		Logger:   root,
	}
	if store != nil {
		deps.Audit = store
	}
	router := bot.New(deps)

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		cred:     cred,
		vk:       vkc,
		jobs:     jobs,
		notif:    notif,
		settings: settings,
		router:   router,
		updates:  make(chan transport.Update, 256),
	}
	a.probe = newTokenProber(root, vkc.Probe, func() bool { return cred.Info().Set }, a.alert)
	a.http = httpserver.New(mapHTTPConfig(cfg), root, reg, a.health)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// The notifier outlives the app context so Stop can drain its queue.
	if a.notif.Enabled() {
		a.notif.Start(context.WithoutCancel(a.sup.Context()))
	}

	// Subscribe before the dispatcher runs so no job event is missed.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, "poster.job.")
		a.sup.Go0("audit.writer", func(c context.Context) {
			defer unsub()
			runAuditWriter(c, events, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	cfg := a.cfgm.Get()
	a.http.Start(a.sup.Context())
	if err := a.probe.Start(a.sup.Context(), probeSpec(cfg)); err != nil {
		a.log.Warn("vk probe not scheduled", logx.Err(err))
	}

	a.log.Info("app started",
		logx.Int("owners", len(cfg.Telegram.OwnerUserIDs)),
		logx.Bool("vk_token_set", a.cred.Info().Set),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// applyConfig pushes a reloaded config into every live component.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev != nil && (prev.Telegram.Token != next.Telegram.Token || prev.Telegram.PollTimeout != next.Telegram.PollTimeout) {
		a.log.Warn("telegram connection settings changed; restart required for changes to take effect")
	}
	if prev != nil && prev.VK.Token != next.VK.Token {
		// The config token only seeds the credential; /token owns it afterwards.
		a.log.Info("vk.token changed in config; ignored while running, use /token")
	}

	a.logs.Apply(mapLogConfig(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.settings.Apply(mapSettings(next))
	a.jobs.SetDefaults(mapPosterDefaults(next))
	a.vk.SetRate(next.VK.RatePerSec)

	prevNotif := a.notif.Enabled()
	ncfg := mapNotifierConfig(next)
	a.notif.Apply(ncfg)
	switch {
	case prevNotif && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotif && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(context.WithoutCancel(ctx))
	}

	a.http.Reconfigure(ctx, mapHTTPConfig(next))
	if err := a.probe.Reschedule(probeSpec(next)); err != nil {
		a.log.Warn("vk probe not rescheduled", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// alert sends an operational message to the alert chats.
func (a *App) alert(ctx context.Context, text string) {
	for _, to := range alertTargets(a.cfgm.Get()) {
		n := transport.Notification{Source: "probe", Priority: 7, Target: to, Text: text}
		err := a.notif.Notify(ctx, n)
		if errors.Is(err, notifier.ErrDisabled) || errors.Is(err, notifier.ErrStopped) {
			_, err = a.adapter.SendText(ctx, to, text, nil)
		}
		if err != nil {
			a.log.Warn("alert not delivered", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		}
	}
}

// health backs /healthz.
func (a *App) health(context.Context) (any, error) {
	info := a.cred.Info()
	details := map[string]any{
		"active_jobs":      a.jobs.Active(),
		"vk_token_set":     info.Set,
		"notifier_enabled": a.notif.Enabled(),
		"storage":          a.store != nil,
	}
	if !info.Set {
		return details, errors.New("vk token not set")
	}
	if err := a.probe.LastError(); err != nil {
		details["probe_error"] = err.Error()
		if errors.Is(err, poster.ErrUnauthenticated) {
			return details, errors.New("vk token rejected")
		}
	}
	return details, nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Jobs go first while the dispatcher, notifier and audit writer are still
	// up, so their final summaries reach the chat and the audit log.
	step("jobs", 5*time.Second, a.jobs.Close)

	a.sup.Cancel()

	step("probe", time.Second, func(c context.Context) error { a.probe.Stop(c); return nil })
	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	// Wait for supervised goroutines (audit writer, dispatcher, config watch).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
