package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CheckDependencies verifies that required external commands are installed
func CheckDependencies() error {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return fmt.Errorf("required command 'yt-dlp' not found in PATH. Install with: pip install yt-dlp")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("required command 'ffmpeg' not found in PATH (needed to transcode audio to mp3)")
	}

	return nil
}

// CreateTempDir creates a temporary folder under the system temp directory
func CreateTempDir(pattern string) (string, error) {
	if pattern == "" {
		pattern = "tunevault-*"
	}
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes the temporary folder.
// Safety check: only deletes directories in the system temp folder
func Cleanup(dir string) error {
	if dir == "" {
		return nil
	}

	if !strings.HasPrefix(filepath.Clean(dir), filepath.Clean(os.TempDir())) {
		return fmt.Errorf("refusing to delete directory outside temp folder: %s", dir)
	}

	return os.RemoveAll(dir)
}

// WithTempDir creates a temporary directory, passes it to fn and removes it
// afterwards, whether fn returns an error, succeeds or panics.
func WithTempDir(pattern string, fn func(dir string) error) (err error) {
	dir, err := CreateTempDir(pattern)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := Cleanup(dir); cerr != nil && err == nil {
			err = fmt.Errorf("failed to remove temporary directory %s: %w", dir, cerr)
		}
	}()

	return fn(dir)
}

// SanitizeFilename removes or replaces characters that are problematic in
// file names and object keys.
func SanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	s = replacer.Replace(s)

	// Control characters never belong in a key.
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)

	s = strings.TrimSpace(s)
	// Leading dots would hide the file and ".." would escape the directory.
	s = strings.TrimLeft(s, ".")
	return strings.TrimSpace(s)
}
