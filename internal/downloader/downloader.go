package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"tunevault/internal/config"
	"tunevault/internal/logger"
	"tunevault/pkg/utils"
)

// Bitrate is an MP3 target bitrate in kbps.
type Bitrate int

const (
	Bitrate128 Bitrate = 128
	Bitrate192 Bitrate = 192
	Bitrate320 Bitrate = 320

	DefaultBitrate = Bitrate192
)

// Bitrates lists the allowed values in ascending order.
var Bitrates = []Bitrate{Bitrate128, Bitrate192, Bitrate320}

// Valid reports whether b is one of the allowed bitrates.
func (b Bitrate) Valid() bool {
	switch b {
	case Bitrate128, Bitrate192, Bitrate320:
		return true
	}
	return false
}

func (b Bitrate) String() string {
	return strconv.Itoa(int(b)) + "k"
}

// ParseBitrate accepts "192", "192k" or "192kbps".
func ParseBitrate(s string) (Bitrate, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "kbps")
	v = strings.TrimSuffix(v, "k")

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	b := Bitrate(n)
	if !b.Valid() {
		return 0, fmt.Errorf("unsupported bitrate %d (allowed: 128, 192, 320)", n)
	}
	return b, nil
}

// AudioAsset is a transcoded file on local disk.
type AudioAsset struct {
	Path        string
	Format      string
	BitrateKbps int
}

// Skip records why a track produced no asset.
type Skip struct {
	Label  string
	Reason string
}

// Result of a single fetch. Exactly one of Asset and Skip is set.
type Result struct {
	Asset *AudioAsset
	Skip  *Skip
}

// Skipped reports whether the fetch produced no asset.
func (r Result) Skipped() bool { return r.Asset == nil }

// Request describes one yt-dlp invocation.
type Request struct {
	Query          string
	OutputTemplate string
	Bitrate        Bitrate
}

// Fetcher searches YouTube for a track label and downloads the first match as MP3.
type Fetcher struct {
	Config config.Config
	Logger *logger.Logger

	// run executes yt-dlp. Replaced in tests.
	run func(ctx context.Context, req Request) error
}

// New creates a new Fetcher instance
func New(cfg config.Config, log *logger.Logger) *Fetcher {
	f := &Fetcher{Config: cfg, Logger: log}
	f.run = f.runYtdlp
	return f
}

// Fetch downloads the first search result for label into a fresh directory under destDir.
// The caller owns destDir and removes it.
func (f *Fetcher) Fetch(ctx context.Context, label, destDir string, bitrate Bitrate) (Result, error) {
	if !bitrate.Valid() {
		return Result{}, fmt.Errorf("unsupported bitrate %d", bitrate)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create destination %s: %w", destDir, err)
	}
	attemptDir, err := os.MkdirTemp(destDir, "fetch-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create attempt directory: %w", err)
	}

	name := utils.SanitizeFilename(label)
	if name == "" {
		name = "track"
	}
	// yt-dlp treats % as a template directive
	tpl := filepath.Join(attemptDir, strings.ReplaceAll(name, "%", "%%")+".%(ext)s")
	expected := filepath.Join(attemptDir, name+".mp3")

	req := Request{
		Query:          "ytsearch1:" + label,
		OutputTemplate: tpl,
		Bitrate:        bitrate,
	}

	f.Logger.Debug("Fetching %q -> %s", label, expected)
	runErr := f.run(ctx, req)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	info, statErr := os.Stat(expected)
	if statErr != nil || info.Size() == 0 {
		reason := "no audio produced"
		if runErr != nil {
			reason = runErr.Error()
		}
		f.Logger.Debug("Skipping %q: %s", label, reason)
		return Result{Skip: &Skip{Label: label, Reason: reason}}, nil
	}
	if runErr != nil {
		// --ignore-errors can exit non-zero after writing the file
		f.Logger.Debug("yt-dlp reported %v for %q but produced %s", runErr, label, expected)
	}

	return Result{Asset: &AudioAsset{
		Path:        expected,
		Format:      "mp3",
		BitrateKbps: int(bitrate),
	}}, nil
}

func (f *Fetcher) runYtdlp(ctx context.Context, req Request) error {
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(strconv.Itoa(int(req.Bitrate)) + "K").
		IgnoreErrors().
		NoOverwrites().
		NoPlaylist().
		Quiet().
		NoWarnings().
		Output(req.OutputTemplate)

	// If empty yt-dlp will go to default (--no-cookies-from-browser)
	if f.Config.CookiesBrowser != "" {
		dl = dl.CookiesFromBrowser(f.Config.CookiesBrowser)
	}
	if f.Config.YtdlpPath != "" {
		dl = dl.SetExecutable(f.Config.YtdlpPath)
	}

	if _, err := dl.Run(ctx, req.Query); err != nil {
		return fmt.Errorf("yt-dlp failed: %w", err)
	}
	return nil
}
