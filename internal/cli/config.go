package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wobblecap/wobblecap/internal/config"
)

// configCommand creates the config command. Without subcommands it prints the
// effective configuration as TOML.
func (c *CLI) configCommand() *cobra.Command {
	var configPath string
	var defaults bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Example: `  wobblecap config --default > ~/.config/wobblecap/config.toml
  wobblecap config --config ./wobblecap.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if !defaults {
				var err error
				if cfg, err = loadConfig(configPath); err != nil {
					return err
				}
			}
			return config.Write(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/wobblecap/config.toml)")
	cmd.Flags().BoolVar(&defaults, "default", false, "print the built-in defaults and ignore any config file")
	cmd.AddCommand(c.configPathCommand())

	return cmd
}

// configPathCommand creates the "config path" subcommand.
func (c *CLI) configPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the default config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := defaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
