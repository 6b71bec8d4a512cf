package main

import (
	"github.com/spf13/cobra"

	"vkrelay/internal/config"
)

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:   "vkrelay",
	Short: "Telegram bot that posts to VK community walls",
	Long: `vkrelay runs single, bulk and periodic posting jobs against VK
community walls, driven by owner commands in Telegram.`,
	Version:      Version,
	SilenceUsage: true,
}

func loadDotEnv(cmd *cobra.Command, args []string) error {
	return config.LoadDotEnv(envPath)
}

func init() {
	// Bare "vkrelay" runs the bot.
	rootCmd.RunE = runBot
	rootCmd.PersistentPreRunE = loadDotEnv

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file with TELEGRAM_TOKEN / VK_TOKEN (optional)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkTokenCmd)
	rootCmd.AddCommand(versionCmd)
}
