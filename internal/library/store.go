// Package library stores and lists the MP3 files of synced playlists.
// Objects are laid out as <folder>/<filename>.mp3 at the root of a bucket.
package library

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// SongExt is the only extension listed as a song.
const SongExt = ".mp3"

// Store is the object storage backing the library.
type Store interface {
	// ListFolders returns the top-level folder names, without trailing "/".
	ListFolders(ctx context.Context) ([]string, error)
	// ListSongs returns the .mp3 objects directly or indirectly under folder/.
	ListSongs(ctx context.Context, folder string) ([]Song, error)
	// ReadSong returns the full object body.
	ReadSong(ctx context.Context, key string) ([]byte, error)
	// WriteSong uploads localPath as folder/<basename> and returns the key.
	// An existing object with the same key is overwritten.
	WriteSong(ctx context.Context, localPath, folder string) (string, error)
}

// Song is a stored MP3 object.
type Song struct {
	Key      string `json:"key"`
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Name is the filename without the .mp3 extension.
func (s Song) Name() string {
	return strings.TrimSuffix(s.Filename, SongExt)
}

// SongKey joins a folder and filename into an object key.
func SongKey(folder, filename string) string {
	return folder + "/" + filename
}

// IsSongKey reports whether key names an MP3 object.
func IsSongKey(key string) bool {
	return strings.HasSuffix(key, SongExt)
}

func songFromKey(folder, key string, size int64) Song {
	return Song{
		Key:      key,
		Folder:   folder,
		Filename: path.Base(key),
		Size:     size,
	}
}

// StorageError wraps a failed backend operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
