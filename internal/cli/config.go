package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/colthorp/brisket-go/internal/config"
	"github.com/colthorp/brisket-go/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.toml populated with the defaults",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configPath
		if path == "" {
			path = config.ConfigFile()
		}
		if err := initConfig(path, force); err != nil {
			return err
		}
		logging.FromContext(cmd.Context()).Info("wrote config", "path", path)
		_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showConfig(cmd.OutOrStdout(), appConfig)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config and data paths",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "Config file: %s\n", config.ConfigFile())
		_, _ = fmt.Fprintf(w, "Env file:    %s\n", config.EnvFile())
		_, err := fmt.Fprintf(w, "Data dir:    %s\n", appConfig.ResolvedDataDir())
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

// initConfig writes the default configuration to path. An existing file is
// left alone unless force is set.
func initConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return config.Save(config.DefaultConfig(), path)
}

// showConfig prints cfg as TOML with the API key masked.
func showConfig(w io.Writer, cfg config.Config) error {
	if cfg.Provider.APIKey != "" {
		cfg.Provider.APIKey = "********"
	}
	return toml.NewEncoder(w).Encode(cfg)
}
