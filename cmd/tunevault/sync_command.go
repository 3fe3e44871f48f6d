package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"tunevault/internal/config"
	"tunevault/internal/downloader"
	"tunevault/internal/library"
	"tunevault/internal/metadata"
	"tunevault/internal/pipeline"
	"tunevault/internal/progress"
	"tunevault/internal/provider/spotify"
	"tunevault/internal/shutdown"
	"tunevault/pkg/utils"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		folder  string
		bitrate string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "sync <playlist-url>",
		Short: "Download every track of a Spotify playlist into a library folder",
		Example: "  tunevault sync --folder \"Road Trip\" https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M\n" +
			"  tunevault sync -n -f Gym -b 320 https://open.spotify.com/playlist/...",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			br := downloader.Bitrate(cfg.DefaultBitrate)
			if bitrate != "" {
				if br, err = downloader.ParseBitrate(bitrate); err != nil {
					return err
				}
			}

			required := config.SpotifyKeys
			if !dryRun {
				required = slices.Concat(config.SpotifyKeys, config.StorageKeys)
			}
			if err := cfg.RequireSecrets(required...); err != nil {
				return err
			}

			log := ctx.newLogger(cfg, "sync")
			defer log.Close()

			log.Debug("Checking dependencies...")
			if err := utils.CheckDependencies(); err != nil {
				return fmt.Errorf("dependency check failed: %w", err)
			}

			var store library.Store
			if dryRun {
				log.Info("Dry run: songs are kept in memory and discarded")
				store = library.NewMemStore()
			} else {
				if store, err = newS3Store(cfg); err != nil {
					return err
				}
			}

			sh := shutdown.New()
			sh.Listen()
			defer sh.Shutdown()

			syncer := &pipeline.Syncer{
				Resolver: spotify.New(cfg.Secrets.SpotifyClientID, cfg.Secrets.SpotifyClientSecret),
				Fetcher:  downloader.New(cfg, log),
				Store:    store,
				Logger:   log,
				Tag:      metadata.WriteTags,
				LockDir:  cfg.LockDir(),
			}

			var bar *progress.Bar
			useBar := !cfg.Verbose && progress.Enabled(os.Stdout)
			hooks := pipeline.Hooks{
				OnTracksResolved: func(total int) {
					if useBar && total > 0 {
						bar = progress.New(os.Stdout, total)
						log.SetProgressBar(true)
					}
				},
				OnTrackStart: func(index, total int, label string) {
					if bar != nil {
						bar.SetStatus(label)
					}
				},
				OnTrackDone: func(pipeline.TrackResult) {
					if bar != nil {
						bar.Increment()
					}
				},
			}

			stats, err := syncer.Sync(sh.Context(), pipeline.Request{
				PlaylistURL: args[0],
				Folder:      folder,
				Bitrate:     br,
			}, hooks)

			if bar != nil {
				bar.Finish()
				log.SetProgressBar(false)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), summarize(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Library folder to store the songs in (required)")
	cmd.Flags().StringVarP(&bitrate, "bitrate", "b", "", "MP3 bitrate: 128, 192 or 320 (default from config)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Download and tag without uploading")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

func newS3Store(cfg config.Config) (*library.S3Store, error) {
	return library.NewS3Store(library.S3Config{
		Endpoint: cfg.Secrets.B2Endpoint,
		KeyID:    cfg.Secrets.B2KeyID,
		AppKey:   cfg.Secrets.B2AppKey,
		Bucket:   cfg.Secrets.B2Bucket,
		Region:   cfg.B2Region,
	})
}

func summarize(stats pipeline.Stats) string {
	out := fmt.Sprintf("Saved %d of %d songs into %s", stats.Stored, stats.Attempted, stats.Folder)
	if stats.Skipped > 0 || stats.Failed > 0 {
		out += fmt.Sprintf(" (%d not found, %d failed)", stats.Skipped, stats.Failed)
	}
	return out
}
