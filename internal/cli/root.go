// Package cli implements the rag command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/app"
	"github.com/statementrag/rag/internal/config"
	"github.com/statementrag/rag/internal/logging"
)

var (
	cfgPath string
	verbose bool

	appConfig *config.AppConfig
	logger    = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Ask questions about your bank statements",
	Long: `rag extracts fields from bank statement images with a vision model,
indexes them in a local vector store, and answers questions using only the
retrieved statements as context.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML or TOML config (default ./config.yaml or ~/.config/rag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	l, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	appConfig, logger = cfg, l
	return nil
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	return app.Open(cmd.Context(), appConfig, logger)
}
