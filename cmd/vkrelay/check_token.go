package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vkrelay/internal/config"
	"vkrelay/internal/vk"
)

var checkTokenCmd = &cobra.Command{
	Use:   "check-token [token]",
	Short: "Validate a VK token with account.getInfo",
	Long: `Validate a VK token without starting the bot. The token comes from the
argument, or from VK_TOKEN / vk.token in the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, vcfg, err := tokenToCheck(args)
		if err != nil {
			return err
		}
		client := vk.New(vk.Config{
			BaseURL:    vcfg.BaseURL,
			APIVersion: vcfg.APIVersion,
		}, vk.NewCredential(""))

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		info, err := client.Validate(ctx, token)
		if err != nil {
			return fmt.Errorf("token %s rejected: %w", vk.Mask(token), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ token %s is valid (country=%q lang=%d)\n", vk.Mask(token), info.Country, info.Lang)
		return nil
	},
}

// tokenToCheck prefers the argument. The config file is optional here.
func tokenToCheck(args []string) (string, config.VKConfig, error) {
	var vcfg config.VKConfig
	cfg, err := config.NewManager(configPath).Parse()
	if err == nil {
		vcfg = cfg.VK
	}
	token := ""
	if len(args) == 1 {
		token = strings.TrimSpace(args[0])
	} else if err == nil {
		token = strings.TrimSpace(cfg.VK.Token)
	} else {
		token = strings.TrimSpace(os.Getenv(config.EnvVKToken))
	}
	if token == "" {
		if err != nil {
			return "", vcfg, fmt.Errorf("no token given and config not readable: %w", err)
		}
		return "", vcfg, errors.New("no token given: pass it as an argument or set " + config.EnvVKToken)
	}
	return token, vcfg, nil
}
