package main

import (
	"fmt"
	"os"

	"github.com/sifan077/LinkShield/config"
	"github.com/sifan077/LinkShield/internal/infra/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg *config.Config
	log *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "linkshield",
	Short: "LinkShield - protected short link server",
	Long: `LinkShield serves Shield and Ultra-Link protected short links.

Every visit is classified as automated or human. Automated visitors of
Ultra-Links see cloaked content; everyone else passes a countdown gate before
a single redirect to the hidden destination.

Run without arguments to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		log, err = logger.Init(logger.Config{
			Development: cfg.App.Development(),
			Level:       cfg.Logger.Level,
			Encoding:    cfg.Logger.Encoding,
			Service:     "linkshield",
			Sampling:    !cfg.App.Development(),
			File:        cfg.Logger.File,
			MaxSizeMB:   cfg.Logger.MaxSizeMB,
			MaxBackups:  cfg.Logger.MaxBackups,
			MaxAgeDays:  cfg.Logger.MaxAgeDays,
			Compress:    cfg.Logger.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
