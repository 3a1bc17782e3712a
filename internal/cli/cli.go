// Package cli implements the wobblecap command-line interface.
//
// # Commands
//
//   - generate: write captcha images to a directory
//   - serve: run the HTTP issuing and verification service
//   - config: print the effective or default configuration
//   - completion: shell completion scripts
//
// All commands accept --config to load a TOML file. Without it, the file at
// $XDG_CONFIG_HOME/wobblecap/config.toml is used when present.
//
// # Logging
//
// Loggers are passed through context.Context so every command logs through
// the level chosen on the root command.
package cli

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/wobblecap/wobblecap/internal/config"
	"github.com/wobblecap/wobblecap/pkg/buildinfo"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "wobblecap"

	// configFile is the file name looked up in the config directory.
	configFile = "config.toml"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Wobblecap synthesizes distorted-text captcha images",
		Long:         `Wobblecap generates captcha images (random text, cluttered background, sinusoidal distortion) and serves them over HTTP with single-use verification.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.generateCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Paths
// =============================================================================

// configDir returns the config directory using XDG standard (~/.config/wobblecap/).
func configDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// defaultConfigPath returns where the config file is looked up when --config
// is not given.
func defaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// loadConfig loads path, or the default config file when path is empty.
// A missing default file yields the built-in defaults.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	def, err := defaultConfigPath()
	if err != nil {
		return config.Default(), nil
	}
	if _, err := os.Stat(def); errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(def)
}
