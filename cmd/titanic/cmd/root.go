// Package cmd implements the titanic command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded once in PersistentPreRunE and shared by subcommands.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "titanic",
	Short: "Titanic survival training pipeline and prediction server",
	Long: `titanic ingests the Titanic passenger dataset, engineers features,
balances classes, tunes a gradient boosted classifier and serves predictions.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); TITANIC_* environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if err := log.SetupLogger(c.Logging.Level, c.Logging.Format); err != nil {
		return err
	}
	cfg = c
	return nil
}
