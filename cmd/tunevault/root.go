package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tunevault/internal/config"
	"tunevault/internal/logger"
)

// commandContext loads configuration lazily so commands that do not need it
// (init-config, help) work without a settings file.
type commandContext struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	loaded string
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if c.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("configuration error: %w", err)
	}

	c.cfg = &cfg
	c.loaded = c.configPath
	if c.loaded == "" {
		c.loaded = config.FindConfigFile()
	}
	return cfg, nil
}

// newLogger builds the console logger. Outside verbose mode detailed entries
// also go to a timestamped file under the state directory.
func (c *commandContext) newLogger(cfg config.Config, name string) *logger.Logger {
	log := logger.New(cfg.Verbose)

	if !cfg.Verbose {
		logDir := cfg.LogDir()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}

	if c.loaded != "" {
		log.Debug("Loaded configuration from: %s", c.loaded)
	}
	return log
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "tunevault",
		Short:         "Mirror Spotify playlists into an S3-compatible music library",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Show detailed output instead of a progress bar")

	rootCmd.AddCommand(newSyncCommand(ctx))
	rootCmd.AddCommand(newFoldersCommand(ctx))
	rootCmd.AddCommand(newSongsCommand(ctx))
	rootCmd.AddCommand(newInitConfigCommand())

	return rootCmd
}
