package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gumshoe/internal/config"
	"gumshoe/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Loaded configuration, available to every subcommand
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gumshoe",
	Short: "gumshoe - deterministic troubleshooting investigations",
	Long: `gumshoe tracks troubleshooting investigations as explicit cases: a
seven-phase state machine, an evidence ledger, and ranked hypotheses with
numeric confidence.

Language models classify submissions and render replies; every state
transition is decided deterministically by the investigation controller.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gumshoe.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "Workspace directory")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
