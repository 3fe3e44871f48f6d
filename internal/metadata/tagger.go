package metadata

import (
	"fmt"
	"strings"

	"go.senan.xyz/taglib"
)

// WriteTags writes the track's title and artists into an audio file.
func WriteTags(path string, track Track) error {
	tags := make(map[string][]string)

	if track.Title != "" {
		tags[taglib.Title] = []string{track.Title}
	}
	if len(track.Artists) > 0 {
		tags[taglib.Artist] = []string{strings.Join(track.Artists, ", ")}
		tags[taglib.AlbumArtist] = []string{track.Artists[0]}
	}
	if len(tags) == 0 {
		return nil
	}

	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}
