package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"tunevault/internal/config"
	"tunevault/internal/downloader"
	"tunevault/internal/library"
	"tunevault/internal/logger"
	"tunevault/internal/metadata"
	"tunevault/internal/pipeline"
	"tunevault/internal/provider/spotify"
	"tunevault/internal/shutdown"
	"tunevault/internal/web"
	"tunevault/pkg/utils"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var addr, configPath string

	cmd := &cobra.Command{
		Use:           "tunevault-web",
		Short:         "Serve the tunevault web UI",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			// Setup logger with file logging
			l := logger.New(cfg.Verbose)
			defer l.Close()
			logDir := cfg.LogDir()
			if err := os.MkdirAll(logDir, 0755); err == nil {
				logPath := filepath.Join(logDir, fmt.Sprintf("tunevault-web-%d.log", time.Now().Unix()))
				if err := l.SetFileLog(logPath); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: Failed to setup file logging: %v\n", err)
				}
			}

			if err := run(cfg, l); err != nil {
				l.Error("%v", err)
				l.Close()
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides listen_addr)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")
	return cmd
}

func run(cfg config.Config, l *logger.Logger) error {
	if err := cfg.RequireSecrets(slices.Concat(config.StorageKeys, config.SpotifyKeys)...); err != nil {
		return err
	}
	if cfg.UsesDefaultAccessCode() {
		l.Warn("%s is not set; the built-in access code is in use", config.KeyAccessCode)
	}
	if err := utils.CheckDependencies(); err != nil {
		l.Warn("Syncing will fail until this is fixed: %v", err)
	}

	store, err := library.NewS3Store(library.S3Config{
		Endpoint: cfg.Secrets.B2Endpoint,
		KeyID:    cfg.Secrets.B2KeyID,
		AppKey:   cfg.Secrets.B2AppKey,
		Bucket:   cfg.Secrets.B2Bucket,
		Region:   cfg.B2Region,
	})
	if err != nil {
		return err
	}

	syncer := &pipeline.Syncer{
		Resolver: spotify.New(cfg.Secrets.SpotifyClientID, cfg.Secrets.SpotifyClientSecret),
		Fetcher:  downloader.New(cfg, l),
		Store:    store,
		Logger:   l,
		Tag:      metadata.WriteTags,
		LockDir:  cfg.LockDir(),
	}

	sh := shutdown.New()
	sh.Listen()

	jobMgr := web.NewJobManager()
	server := web.NewServer(sh, jobMgr, syncer, store, cfg, l)
	server.StartCleanup()

	// WriteTimeout stays off: audio streams and websockets outlive any fixed deadline
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Starting web server on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		sh.Shutdown()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sh.Context().Done():
	}

	l.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		l.Error("Server shutdown error: %v", err)
	}

	if !sh.WaitTimeout(30 * time.Second) {
		l.Warn("Some sync jobs did not stop in time")
	}
	l.Info("Server stopped")
	return nil
}
