// Package cli implements the command-line interface for brisket.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/colthorp/brisket-go/internal/config"
	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/logging"
	"github.com/colthorp/brisket-go/internal/output"
)

// Global flags
var (
	verbose    bool
	quiet      bool
	noColor    bool
	jsonLogs   bool
	configPath string
	dataDir    string
	timezone   string
	format     string
	strategy   string
	backend    string
)

// appConfig is loaded once per invocation by the root PersistentPreRunE.
var appConfig = config.DefaultConfig()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "brisket",
	Short:   "brisket – cached ERCOT SCED data from GridStatus",
	Long:    `A command-line utility that serves ERCOT SCED datasets from a local 5-minute snapshot cache, fetching missing intervals from the GridStatus API.`,
	Version: core.Version,

	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default: $XDG_CONFIG_HOME/brisket/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Snapshot root directory (overrides data_dir)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "", fmt.Sprintf("Timezone for naive datetimes (default: %s)", core.DefaultTZ))
	rootCmd.PersistentFlags().StringVarP(&format, "format", "o", output.FormatCSV, "Output format: csv, json or yaml")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "", "Fetch strategy: full_range, span or gaps")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Cache backend: filesystem or bolt")
}

// setup loads .env files and config, applies flag overrides and installs the
// logger in the command context.
func setup(cmd *cobra.Command, _ []string) error {
	for _, path := range []string{".env", config.EnvFile()} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if timezone != "" {
		cfg.Timezone = timezone
	}
	if strategy != "" {
		cfg.Fetch.Strategy = strategy
	}
	if backend != "" {
		cfg.Cache.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	appConfig = cfg

	logger := logging.NewLogger(cmd.ErrOrStderr())
	logging.Configure(logger, logging.Flags{Verbose: verbose, Quiet: quiet, NoColor: noColor, JSON: jsonLogs})
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return nil
}
