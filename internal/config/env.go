package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvVKToken       = "VK_TOKEN"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv fills tokens from the environment. Non-empty env values win.
func applyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvVKToken)); v != "" {
		cfg.VK.Token = v
	}
}
