package app

import (
	"strings"
	"time"

	"vkrelay/internal/bot"
	"vkrelay/internal/config"
	"vkrelay/internal/notifier"
	"vkrelay/internal/observability/httpserver"
	"vkrelay/internal/poster"
	"vkrelay/internal/storage"
	"vkrelay/internal/transport"
	"vkrelay/internal/vk"
	"vkrelay/pkg/logx"
)

// The mappers below run on configs that already passed config.Validate, so
// malformed durations fall back to defaults instead of failing.

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapVKConfig(cfg *config.Config, log logx.Logger) vk.Config {
	return vk.Config{
		BaseURL:    cfg.VK.BaseURL,
		APIVersion: cfg.VK.APIVersion,
		RatePerSec: cfg.VK.RatePerSec,
		Logger:     log,
	}
}

func mapPosterDefaults(cfg *config.Config) poster.Defaults {
	p := cfg.Poster
	return poster.Defaults{
		CallTimeout: config.DurationOr(p.CallTimeout, config.DefaultCallTimeout),
		SinkTimeout: config.DurationOr(p.SinkTimeout, config.DefaultSinkTimeout),
		NotifyEvery: p.NotifyEvery,
		HistorySize: p.HistorySize,
	}
}

func mapSettings(cfg *config.Config) bot.SettingsConfig {
	out := bot.SettingsConfig{
		Template:           cfg.Poster.Template,
		PeriodicMaxRepeats: cfg.Poster.PeriodicMaxRepeats,
		DefaultInterval:    config.DurationOr(cfg.Poster.DefaultInterval, config.DefaultInterval),
		DeleteDelay:        config.DurationOr(cfg.Poster.DeleteDelay, config.DefaultDeleteDelay),
	}
	for _, id := range cfg.Targets.Groups {
		if id < 0 {
			id = -id
		}
		out.Groups = append(out.Groups, poster.Target(id))
	}
	for _, id := range cfg.Targets.Chats {
		out.Chats = append(out.Chats, poster.Target(id))
	}
	return out
}

// mapNotifierConfig defaults to an enabled notifier when the section is
// omitted.
func mapNotifierConfig(cfg *config.Config) notifier.Config {
	out := notifier.Config{Enabled: true, RetryMax: 3}
	n := cfg.Notifier
	if n == nil {
		return out
	}
	out.Enabled = n.Enabled
	out.Workers = n.Workers
	out.QueueSize = n.QueueSize
	out.RatePerSec = n.RatePerSec
	if n.RetryMax != 0 {
		out.RetryMax = n.RetryMax
	}
	out.RetryBase = config.DurationOr(n.RetryBase, 0)
	out.RetryMaxDelay = config.DurationOr(n.RetryMaxDelay, 0)
	out.HistorySize = n.HistorySize
	return out
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "none" {
		driver = ""
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

func mapHTTPConfig(cfg *config.Config) httpserver.Config {
	h := cfg.HTTP
	addr := strings.TrimSpace(h.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return httpserver.Config{
		Enabled:       h.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
		ReadTimeout:   config.DurationOr(h.ReadTimeout, 10*time.Second),
		WriteTimeout:  config.DurationOr(h.WriteTimeout, 0),
		IdleTimeout:   config.DurationOr(h.IdleTimeout, 60*time.Second),
	}
}

// probeSpec returns "" when the probe is disabled.
func probeSpec(cfg *config.Config) string {
	spec := strings.TrimSpace(cfg.VK.ProbeSpec)
	switch spec {
	case "-":
		return ""
	case "":
		return config.DefaultProbeSpec
	}
	return spec
}

// alertTargets are the chats that receive operational alerts: the log chat
// when configured, otherwise each owner's private chat.
func alertTargets(cfg *config.Config) []transport.ChatTarget {
	if id := cfg.Telegram.LogChatID; id != 0 {
		return []transport.ChatTarget{{ChatID: id, ThreadID: cfg.Logging.Telegram.ThreadID}}
	}
	out := make([]transport.ChatTarget, 0, len(cfg.Telegram.OwnerUserIDs))
	for _, id := range cfg.Telegram.OwnerUserIDs {
		out = append(out, transport.ChatTarget{ChatID: id})
	}
	return out
}
