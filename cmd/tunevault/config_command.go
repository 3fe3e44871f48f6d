package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tunevault/internal/config"
)

func newInitConfigCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a settings file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Config file already exists at: %s\n", path)
				fmt.Fprintln(out, "Delete it first if you want to recreate it.")
				return nil
			}

			if err := config.SaveConfigFile(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}

			fmt.Fprintf(out, "Created default config file at: %s\n", path)
			fmt.Fprintln(out, "\nCredentials are not stored here. Set them in the environment or in:")
			fmt.Fprintln(out, "  .streamlit/secrets.toml or /etc/secrets/secrets.toml")
			fmt.Fprintf(out, "  %s, %s, %s, %s\n", config.KeyB2Endpoint, config.KeyB2KeyID, config.KeyB2AppKey, config.KeyB2Bucket)
			fmt.Fprintf(out, "  %s, %s, %s\n", config.KeySpotifyClientID, config.KeySpotifyClientSecret, config.KeyAccessCode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "", "Where to write the file (default ~/.config/tunevault/config.yaml)")
	return cmd
}
