package metadata

import (
	"context"
	"strings"
)

// Track is one playlist entry as reported by the playlist provider.
type Track struct {
	Title   string
	Artists []string
}

// Label renders the track as "title - artist1, artist2", the form used as a
// search query and as the stored file name.
func (t Track) Label() string {
	return t.Title + " - " + strings.Join(t.Artists, ", ")
}

// Resolver turns a playlist reference into its ordered tracks.
type Resolver interface {
	Name() string
	Tracks(ctx context.Context, playlistURL string) ([]Track, error)
}
