package config

import (
	"reflect"
	"sort"
	"strings"

	"vkrelay/pkg/logx"
)

// SummarizeChange returns the sorted list of changed sections and safe
// structured attrs for logging. Tokens are never included, only whether
// they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 24)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.LogChatID != nt.LogChatID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	ov, nv := oldCfg.VK, newCfg.VK
	if ov != nv {
		changed = append(changed, "vk")
		attrs = append(attrs,
			logx.Bool("vk.token_set", strings.TrimSpace(nv.Token) != ""),
			logx.Bool("vk.token_changed", ov.Token != nv.Token),
			logx.Any("vk.rate_per_sec", nv.RatePerSec),
			logx.String("vk.probe_spec", nv.ProbeSpec),
		)
	}

	if oldCfg.Poster != newCfg.Poster {
		p := newCfg.Poster
		changed = append(changed, "poster")
		attrs = append(attrs,
			logx.String("poster.call_timeout", p.CallTimeout),
			logx.String("poster.sink_timeout", p.SinkTimeout),
			logx.Int("poster.notify_every", p.NotifyEvery),
			logx.Int("poster.history_size", p.HistorySize),
			logx.Bool("poster.template_changed", oldCfg.Poster.Template != p.Template),
		)
	}

	if !reflect.DeepEqual(oldCfg.Targets, newCfg.Targets) {
		changed = append(changed, "targets")
		attrs = append(attrs,
			logx.Int("targets.groups", len(newCfg.Targets.Groups)),
			logx.Int("targets.chats", len(newCfg.Targets.Chats)),
		)
	}

	// A nil notifier section means runtime defaults.
	defN := NotifierConfig{Enabled: true}
	on, nn := defN, defN
	if oldCfg.Notifier != nil {
		on = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		nn = *newCfg.Notifier
	}
	if on != nn {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Int("notifier.workers", nn.Workers),
			logx.Int("notifier.queue_size", nn.QueueSize),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	oh, nh := oldCfg.HTTP, newCfg.HTTP
	if oh != nh {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nh.Enabled),
			logx.String("http.addr", nh.Addr),
			logx.Bool("http.token_set", strings.TrimSpace(nh.Token) != ""),
			logx.Bool("http.pprof", nh.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
