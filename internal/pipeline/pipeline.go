package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"tunevault/internal/downloader"
	"tunevault/internal/library"
	"tunevault/internal/logger"
	"tunevault/internal/metadata"
	"tunevault/internal/synclock"
	"tunevault/pkg/utils"
)

// ErrInvalidInput is returned for a request that cannot be synced as given.
var ErrInvalidInput = errors.New("invalid input")

// Fetcher turns a track label into a local audio file.
type Fetcher interface {
	Fetch(ctx context.Context, label, destDir string, bitrate downloader.Bitrate) (downloader.Result, error)
}

// Request describes one playlist sync.
type Request struct {
	PlaylistURL string
	Folder      string
	Bitrate     downloader.Bitrate
}

// Track outcomes reported in TrackResult.Status.
const (
	StatusStored  = "stored"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// TrackResult is the outcome of one track.
type TrackResult struct {
	Index  int
	Label  string
	Status string
	Key    string // set when stored
	Reason string // set when skipped or failed
}

// Stats summarizes a finished sync.
type Stats struct {
	Folder    string
	Attempted int
	Stored    int
	Skipped   int
	Failed    int
	Keys      []string
}

type Hooks struct {
	OnTracksResolved func(total int)
	OnTrackStart     func(index, total int, label string)
	OnProgress       func(fraction float64)
	OnTrackDone      func(result TrackResult)
}

// Syncer mirrors playlists into a library store.
type Syncer struct {
	Resolver metadata.Resolver
	Fetcher  Fetcher
	Store    library.Store
	Logger   *logger.Logger

	// Tag writes metadata into a fetched file. Failures are logged only.
	Tag func(path string, track metadata.Track) error

	// LockDir holds per-folder lock files. Locking is off when empty.
	LockDir string
}

// SanitizeFolder keeps letters, digits, spaces, '-' and '_', then trims spaces.
func SanitizeFolder(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Sync resolves the playlist and stores every track it can fetch under the
// sanitized folder. Tracks are processed one at a time in playlist order.
// A failed resolution aborts the run; a failed track is counted and skipped.
func (s *Syncer) Sync(ctx context.Context, req Request, hooks Hooks) (Stats, error) {
	folder := SanitizeFolder(req.Folder)
	if folder == "" {
		return Stats{}, fmt.Errorf("%w: folder name %q has no usable characters", ErrInvalidInput, req.Folder)
	}
	if !req.Bitrate.Valid() {
		return Stats{}, fmt.Errorf("%w: unsupported bitrate %d", ErrInvalidInput, req.Bitrate)
	}
	if strings.TrimSpace(req.PlaylistURL) == "" {
		return Stats{}, fmt.Errorf("%w: playlist URL is empty", ErrInvalidInput)
	}

	log := s.Logger.With("folder", folder)

	if s.LockDir != "" {
		lock, err := synclock.Acquire(s.LockDir, folder)
		if err != nil {
			return Stats{}, err
		}
		defer lock.Release()
	}

	log.Info("=== Resolving playlist ===")
	log.Debug("Playlist URL: %s", req.PlaylistURL)
	tracks, err := s.Resolver.Tracks(ctx, req.PlaylistURL)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to resolve playlist: %w", err)
	}

	stats := Stats{Folder: folder, Attempted: len(tracks)}
	total := len(tracks)
	if hooks.OnTracksResolved != nil {
		hooks.OnTracksResolved(total)
	}
	if total == 0 {
		log.Warn("Playlist has no usable tracks")
		return stats, nil
	}

	log.Info("=== Syncing %d tracks at %s ===", total, req.Bitrate)

	for i, track := range tracks {
		if err := ctx.Err(); err != nil {
			log.Warn("Sync cancelled after %d of %d tracks", i, total)
			return stats, err
		}

		label := track.Label()
		if hooks.OnTrackStart != nil {
			hooks.OnTrackStart(i, total, label)
		}
		log.Debug("[%d/%d] %s", i+1, total, label)

		result, err := s.syncTrack(ctx, folder, track, req.Bitrate)
		if err != nil && ctx.Err() != nil {
			log.Warn("Sync cancelled after %d of %d tracks", i, total)
			return stats, ctx.Err()
		}
		result.Index = i

		switch result.Status {
		case StatusStored:
			stats.Stored++
			stats.Keys = append(stats.Keys, result.Key)
		case StatusSkipped:
			stats.Skipped++
			log.Warn("[%d/%d] Skipped %s: %s", i+1, total, label, result.Reason)
		default:
			stats.Failed++
			log.Error("[%d/%d] Failed %s: %s", i+1, total, label, result.Reason)
		}

		if hooks.OnTrackDone != nil {
			hooks.OnTrackDone(result)
		}
		if hooks.OnProgress != nil {
			hooks.OnProgress(float64(i+1) / float64(total))
		}
	}

	log.Info("Sync completed: %d stored, %d skipped, %d failed", stats.Stored, stats.Skipped, stats.Failed)
	return stats, nil
}

// syncTrack fetches, tags and stores one track inside its own temp dir.
// The returned error is only used to detect cancellation; the outcome is in
// the TrackResult.
func (s *Syncer) syncTrack(ctx context.Context, folder string, track metadata.Track, bitrate downloader.Bitrate) (TrackResult, error) {
	label := track.Label()
	result := TrackResult{Label: label}

	err := utils.WithTempDir("tunevault-track-*", func(dir string) error {
		res, err := s.Fetcher.Fetch(ctx, label, dir, bitrate)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		if res.Skipped() {
			result.Status = StatusSkipped
			if res.Skip != nil {
				result.Reason = res.Skip.Reason
			}
			return nil
		}

		if s.Tag != nil {
			if err := s.Tag(res.Asset.Path, track); err != nil {
				s.Logger.Warn("Could not tag %s: %v", label, err)
			}
		}

		key, err := s.Store.WriteSong(ctx, res.Asset.Path, folder)
		if err != nil {
			return err
		}
		result.Status = StatusStored
		result.Key = key
		return nil
	})

	if err != nil && result.Status != "" {
		// the track finished; only the temp dir removal failed
		s.Logger.Warn("%v", err)
		return result, nil
	}
	if err != nil {
		result.Status = StatusFailed
		result.Reason = err.Error()
	}
	return result, err
}
