package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dropbot",
	Short: "Airdrop discovery and alert bot",
	Long:  "Sweeps the quest catalog for new airdrops, vets them against scam signals, ranks by trust, buzz and reward, and broadcasts the keepers to subscribed Telegram chats.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
