// Package main is the entry point for the mealdose CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mrcode/mealdose/internal/channel"
	"github.com/mrcode/mealdose/internal/config"
	"github.com/mrcode/mealdose/internal/engine"
	"github.com/mrcode/mealdose/internal/storage"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger

	// Wired collaborators, built in PersistentPreRunE
	cfg     *config.Config
	store   *storage.SQLiteStore
	service *engine.Service
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mealdose",
	Short: "mealdose - meal carbohydrate and insulin dosing assistant",
	Long: `mealdose tracks the carbohydrates, fat, protein and insulin registered
for the meal in progress, resolves the hourly carb-ratio and start-dose
schedules, applies temporary overrides, and sends dose requests through a
confirmation channel (desktop alert, automation webhook or SMS gateway).

The engine owns all dosing arithmetic; commands only render its results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath == "" {
			if configPath, err = config.Path(); err != nil {
				return fmt.Errorf("resolving config path: %w", err)
			}
		}
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if store, err = storage.NewSQLiteStore(cfg.DatabasePath); err != nil {
			return fmt.Errorf("opening database: %w", err)
		}

		service = engine.New(cfg, store, storage.NewStateStore(cfg.StatePath), store, logger)
		service.RegisterChannel(channel.NewManual(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.EnableAlertSound))
		if cfg.AutomationURL != "" {
			service.RegisterChannel(channel.NewWebhook(cfg.AutomationURL))
		}
		if cfg.SMSGatewayURL != "" {
			service.RegisterChannel(channel.NewSMS(cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.SMSRecipient))
		}

		// Restore persisted state before any interaction.
		if err := service.Rehydrate(); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(foodsCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(doseCmd)
	rootCmd.AddCommand(resendCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(endMealCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
