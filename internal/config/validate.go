package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Runtime defaults for omitted fields.
const (
	DefaultPollTimeout        = 10 * time.Second
	DefaultVKBaseURL          = "https://api.vk.com/method/"
	DefaultVKAPIVersion       = "5.131"
	DefaultVKRatePerSec       = 3.0
	DefaultProbeSpec          = "@every 5m"
	DefaultCallTimeout        = 15 * time.Second
	DefaultSinkTimeout        = 2 * time.Second
	DefaultNotifyEvery        = 5
	DefaultHistorySize        = 50
	DefaultPeriodicMaxRepeats = 1000
	DefaultInterval           = 60 * time.Second
	DefaultDeleteDelay        = 10 * time.Second
	DefaultHTTPAddr           = "127.0.0.1:9090"
)

// Validate checks a decoded config. It collects every problem instead of
// stopping at the first one.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	if cfg.VK.RatePerSec < 0 {
		add(errors.New("vk.rate_per_sec must be >= 0"))
	}
	if spec := strings.TrimSpace(cfg.VK.ProbeSpec); spec != "" && spec != "-" {
		if _, err := cron.ParseStandard(spec); err != nil {
			add(fmt.Errorf("vk.probe_spec: %w", err))
		}
	}

	p := cfg.Poster
	for path, raw := range map[string]string{
		"poster.call_timeout":     p.CallTimeout,
		"poster.sink_timeout":     p.SinkTimeout,
		"poster.default_interval": p.DefaultInterval,
		"poster.delete_delay":     p.DeleteDelay,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	if p.NotifyEvery < 0 || p.HistorySize < 0 || p.PeriodicMaxRepeats < 0 {
		add(errors.New("poster: counts must be >= 0"))
	}

	for i, id := range cfg.Targets.Groups {
		if id == 0 {
			add(fmt.Errorf("targets.groups[%d]: id must be non-zero", i))
		}
	}
	for i, id := range cfg.Targets.Chats {
		if id <= 0 {
			add(fmt.Errorf("targets.chats[%d]: peer id must be positive", i))
		}
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			add(errors.New("notifier: counts must be >= 0"))
		}
		_, err := ParseDurationField("notifier.retry_base", n.RetryBase)
		add(err)
		_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
		add(err)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	h := cfg.HTTP
	for path, raw := range map[string]string{
		"http.read_timeout":  h.ReadTimeout,
		"http.write_timeout": h.WriteTimeout,
		"http.idle_timeout":  h.IdleTimeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	return errors.Join(errs...)
}
