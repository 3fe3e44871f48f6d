package metadata

import (
	"os/exec"
	"path/filepath"
	"testing"

	"go.senan.xyz/taglib"
)

// createTestAudioFile generates a minimal MP3 using ffmpeg.
// Skips the test if ffmpeg is not available.
func createTestAudioFile(t *testing.T, dir string) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available, skipping tagger test")
	}

	path := filepath.Join(dir, "test.mp3")
	cmd := exec.Command("ffmpeg", "-f", "lavfi", "-i", "anullsrc=r=44100:cl=mono", "-t", "0.1", "-q:a", "9", path)
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to create test audio file: %v", err)
	}
	return path
}

func TestWriteTags(t *testing.T) {
	dir := t.TempDir()
	path := createTestAudioFile(t, dir)

	track := Track{Title: "Blinding Lights", Artists: []string{"The Weeknd", "Guest"}}
	if err := WriteTags(path, track); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		t.Fatalf("failed to read tags: %v", err)
	}

	checks := map[string]string{
		taglib.Title:       "Blinding Lights",
		taglib.Artist:      "The Weeknd, Guest",
		taglib.AlbumArtist: "The Weeknd",
	}
	for key, want := range checks {
		if got := firstTag(tags, key); got != want {
			t.Errorf("tag %s = %q, want %q", key, got, want)
		}
	}
}

func TestWriteTagsMissingFile(t *testing.T) {
	err := WriteTags(filepath.Join(t.TempDir(), "missing.mp3"), Track{Title: "x", Artists: []string{"y"}})
	if err == nil {
		t.Error("WriteTags should fail for a missing file")
	}
}

func TestWriteTagsNothingToWrite(t *testing.T) {
	if err := WriteTags("/does/not/matter.mp3", Track{}); err != nil {
		t.Errorf("empty track should be a no-op, got %v", err)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		track Track
		want  string
	}{
		{Track{Title: "Song", Artists: []string{"Artist"}}, "Song - Artist"},
		{Track{Title: "Duet", Artists: []string{"A", "B", "C"}}, "Duet - A, B, C"},
	}
	for _, tt := range tests {
		if got := tt.track.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func firstTag(tags map[string][]string, key string) string {
	if vals, ok := tags[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}
