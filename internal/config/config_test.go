package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAMLAndJSON(t *testing.T) {
	t.Setenv(EnvTelegramToken, "")
	t.Setenv(EnvVKToken, "")

	yml := writeFile(t, "cfg.yaml", `
telegram:
  token: tg
  owner_user_ids: [1, 2]
  poll_timeout: 5s
logging:
  level: debug
  console: true
vk:
  token: vk
  rate_per_sec: 2
poster:
  notify_every: 3
  template: hello
`)
	cfg, err := NewManager(yml).Load()
	require.NoError(t, err)
	require.Equal(t, "tg", cfg.Telegram.Token)
	require.Equal(t, []int64{1, 2}, cfg.Telegram.OwnerUserIDs)
	require.Equal(t, 2.0, cfg.VK.RatePerSec)
	require.Equal(t, 3, cfg.Poster.NotifyEvery)
	require.Equal(t, "hello", cfg.Poster.Template)

	js := writeFile(t, "cfg.json", `{"telegram":{"token":"tg"},"logging":{},"vk":{},"poster":{}}`)
	cfg, err = NewManager(js).Load()
	require.NoError(t, err)
	require.Equal(t, "tg", cfg.Telegram.Token)
}

func TestLoadRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	p := writeFile(t, "cfg.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	_, err := NewManager(p).Load()
	require.Error(t, err)

	p = writeFile(t, "cfg2.json", `{"telegram":{"token":"x"}}{}`)
	_, err = NewManager(p).Load()
	require.ErrorContains(t, err, "trailing data")
}

func TestEnvOverridesTokens(t *testing.T) {
	t.Setenv(EnvTelegramToken, "from-env")
	t.Setenv(EnvVKToken, "vk-env")
	p := writeFile(t, "cfg.json", `{"telegram":{"token":"file"},"vk":{"token":"file"}}`)
	cfg, err := NewManager(p).Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Telegram.Token)
	require.Equal(t, "vk-env", cfg.VK.Token)
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv(EnvVKToken, "")
	os.Unsetenv(EnvVKToken)
	p := writeFile(t, ".env", "VK_TOKEN=dotenv-token\n")
	require.NoError(t, LoadDotEnv(p))
	require.Equal(t, "dotenv-token", os.Getenv(EnvVKToken))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{
		Poster:  PosterConfig{CallTimeout: "soon", NotifyEvery: -1, DeleteDelay: "later"},
		VK:      VKConfig{ProbeSpec: "not a cron"},
		Storage: &StorageConfig{Driver: "redis"},
		Targets: TargetsConfig{Groups: []int64{5, 0}, Chats: []int64{-3}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"telegram.token", "poster.call_timeout", "poster.delete_delay", "poster: counts",
		"vk.probe_spec", "storage.driver", "targets.groups[1]", "targets.chats[0]",
	} {
		require.Contains(t, msg, want)
	}

	cfg = &Config{Telegram: TelegramConfig{Token: "t"}, VK: VKConfig{ProbeSpec: "-"}}
	require.NoError(t, Validate(cfg))
}

func TestDurationOr(t *testing.T) {
	require.Equal(t, 3*time.Second, DurationOr("3s", time.Second))
	require.Equal(t, time.Second, DurationOr("", time.Second))
	require.Equal(t, time.Second, DurationOr("bogus", time.Second))
	require.Equal(t, time.Second, DurationOr("0s", time.Second))
}

func TestSummarizeChange(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "a"}, VK: VKConfig{Token: "x"}}
	b := &Config{Telegram: TelegramConfig{Token: "a"}, VK: VKConfig{Token: "y"}, Poster: PosterConfig{NotifyEvery: 2}}
	changed, attrs := SummarizeChange(a, b)
	require.Equal(t, []string{"poster", "vk"}, changed)
	require.NotEmpty(t, attrs)

	changed, _ = SummarizeChange(a, a)
	require.Empty(t, changed)

	c := &Config{Telegram: a.Telegram, VK: a.VK, Targets: TargetsConfig{Chats: []int64{2000000001}}}
	changed, _ = SummarizeChange(a, c)
	require.Equal(t, []string{"targets"}, changed)
}

func TestWatchPublishesReload(t *testing.T) {
	t.Setenv(EnvTelegramToken, "")
	p := writeFile(t, "cfg.json", `{"telegram":{"token":"one"}}`)
	m := NewManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"two"}}`), 0o600))

	select {
	case cfg := <-sub:
		require.Equal(t, "two", cfg.Telegram.Token)
		require.Equal(t, "two", m.Get().Telegram.Token)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
	m.Unsubscribe(sub)
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv(EnvTelegramToken, "tg-from-env")
	t.Setenv(EnvVKToken, "")
	cfg, err := NewManager(filepath.Join("..", "..", "config.example.yaml")).Load()
	require.NoError(t, err)
	require.Equal(t, "tg-from-env", cfg.Telegram.Token)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, DefaultProbeSpec, cfg.VK.ProbeSpec)
	require.Equal(t, "10s", cfg.Poster.DeleteDelay)
	require.Empty(t, cfg.Targets.Groups)
}
