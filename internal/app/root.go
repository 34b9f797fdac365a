package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"condorview/internal/config"
	"condorview/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "condorview",
	Short: "Query, transform and chart tabular JSON from many sources",
	Long: `condorview fetches tabular data (HTTP JSON, local JSON or CSV files, saved
database connections), merges the sources into one typed table and runs a
pipeline of operators over it: group, pivot, filter, order, tree building,
deltas, quantizing and arithmetic.

A query is a key=value&... string. url= names a source and may repeat; every
other key is an operator applied in the order written:

  condorview query 'url=jobs.json&filter=state=run&group=user;jobs&order=-jobs'`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(queryCmd, csvCmd, serveCmd, mcpCmd, viewCmd, connCmd, approveCmd)
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// withApp builds an App for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	a, err := New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}
