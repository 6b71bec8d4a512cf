package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	VK       VKConfig       `json:"vk"`
	Poster   PosterConfig   `json:"poster"`
	Targets  TargetsConfig  `json:"targets,omitempty"`
	HTTP     HTTPConfig     `json:"http,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives log lines when logging.telegram.enabled is set.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// VKConfig controls the VK API client.
//
// Defaults (when fields are omitted/zero):
//   - base_url: "https://api.vk.com/method/"
//   - api_version: "5.131"
//   - rate_per_sec: 3
//   - probe_spec: "@every 5m" ("-" disables the probe)
type VKConfig struct {
	// Token is the initial community/user token. Can be replaced at runtime
	// from the bot; never logged.
	Token      string  `json:"token,omitempty"`
	BaseURL    string  `json:"base_url,omitempty"`
	APIVersion string  `json:"api_version,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	ProbeSpec  string  `json:"probe_spec,omitempty"`
}

// PosterConfig controls the job registry.
//
// Defaults:
//   - call_timeout: "15s"
//   - sink_timeout: "2s"
//   - notify_every: 5
//   - history_size: 50
//   - periodic_max_repeats: 1000
//   - default_interval: "60s"
//   - delete_delay: "10s"
type PosterConfig struct {
	CallTimeout        string `json:"call_timeout,omitempty"`
	SinkTimeout        string `json:"sink_timeout,omitempty"`
	NotifyEvery        int    `json:"notify_every,omitempty"`
	HistorySize        int    `json:"history_size,omitempty"`
	PeriodicMaxRepeats int    `json:"periodic_max_repeats,omitempty"`
	DefaultInterval    string `json:"default_interval,omitempty"`
	// DeleteDelay is how long chat messages stay before /spamchats deletes them.
	DeleteDelay string `json:"delete_delay,omitempty"`
	// Template is the post text used when a command omits one.
	Template string `json:"template,omitempty"`
}

// TargetsConfig seeds the saved lists used by /spamgroups and /spamchats.
// Lists edited from chat win over reloads until restart.
type TargetsConfig struct {
	// Groups are community ids (sign ignored).
	Groups []int64 `json:"groups,omitempty"`
	// Chats are conversation peer ids.
	Chats []int64 `json:"chats,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	HistorySize   int    `json:"history_size,omitempty"`
}

// StorageConfig controls the audit store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./vkrelay.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HTTPConfig controls the optional metrics/health server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
